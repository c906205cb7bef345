package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"responder/core"
)

// Store persists the playbook catalog. Implementations live in storage.
type Store interface {
	SavePlaybook(ctx context.Context, pb *Playbook) error
	GetPlaybook(ctx context.Context, id uuid.UUID) (*Playbook, error)
	ListPlaybooks(ctx context.Context) ([]*Playbook, error)
	UpdatePlaybook(ctx context.Context, pb *Playbook) error
	DeletePlaybook(ctx context.Context, id uuid.UUID) error
}

// ExecutionStore persists execution traces.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error)
	ListExecutions(ctx context.Context) ([]*Execution, error)
	ListExecutionsForIncident(ctx context.Context, incidentID uuid.UUID) ([]*Execution, error)
}

var validate = validator.New()

// Stats summarizes the catalog and its execution history.
type Stats struct {
	TotalPlaybooks       int  `json:"total_playbooks"`
	EnabledPlaybooks     int  `json:"enabled_playbooks"`
	TotalExecutions      int  `json:"total_executions"`
	SuccessfulExecutions int  `json:"successful_executions"`
	FailedExecutions     int  `json:"failed_executions"`
	AutoExecuteEnabled   bool `json:"auto_execute_enabled"`
}

// Service manages the playbook catalog and drives executions. It owns
// the auto-execute policy: when enabled, every matching enabled
// playbook runs against a newly opened incident.
type Service struct {
	store       Store
	executions  ExecutionStore
	executor    *Executor
	autoExecute bool
	logger      *zap.SugaredLogger
}

// NewService wires the service from its collaborators.
func NewService(store Store, executions ExecutionStore, executor *Executor, autoExecute bool, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:       store,
		executions:  executions,
		executor:    executor,
		autoExecute: autoExecute,
		logger:      logger,
	}
}

// Register validates and stores a new playbook. A zero ID is assigned;
// timestamps are stamped server-side.
func (s *Service) Register(ctx context.Context, pb *Playbook) error {
	if err := validate.Struct(pb); err != nil {
		return core.ValidationErrorf("invalid playbook: %v", err)
	}
	if err := validateSteps(pb); err != nil {
		return err
	}

	if pb.ID == uuid.Nil {
		pb.ID = uuid.New()
	}
	now := time.Now().UTC()
	pb.CreatedAt = now
	pb.UpdatedAt = now

	if err := s.store.SavePlaybook(ctx, pb); err != nil {
		return fmt.Errorf("failed to save playbook %s: %w", pb.Name, err)
	}

	s.logger.Infow("Registered playbook", "playbook", pb.Name, "id", pb.ID, "steps", len(pb.Steps))
	return nil
}

// Update validates and replaces an existing playbook, preserving its
// creation timestamp.
func (s *Service) Update(ctx context.Context, pb *Playbook) error {
	if err := validate.Struct(pb); err != nil {
		return core.ValidationErrorf("invalid playbook: %v", err)
	}
	if err := validateSteps(pb); err != nil {
		return err
	}

	existing, err := s.store.GetPlaybook(ctx, pb.ID)
	if err != nil {
		return err
	}
	pb.CreatedAt = existing.CreatedAt
	pb.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdatePlaybook(ctx, pb); err != nil {
		return fmt.Errorf("failed to update playbook %s: %w", pb.Name, err)
	}

	s.logger.Infow("Updated playbook", "playbook", pb.Name, "id", pb.ID)
	return nil
}

// Delete removes a playbook from the catalog.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeletePlaybook(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Deleted playbook", "id", id)
	return nil
}

// Get returns one playbook by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Playbook, error) {
	return s.store.GetPlaybook(ctx, id)
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]*Playbook, error) {
	return s.store.ListPlaybooks(ctx)
}

// FindMatching returns the enabled playbooks whose triggers select the
// incident.
func (s *Service) FindMatching(ctx context.Context, incident *core.Incident) ([]*Playbook, error) {
	playbooks, err := s.store.ListPlaybooks(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*Playbook
	for _, pb := range playbooks {
		if pb.MatchesIncident(incident) {
			matched = append(matched, pb)
		}
	}
	return matched, nil
}

// ExecutePlaybook runs one playbook by ID against an incident and
// persists the resulting trace. A disabled playbook is a Validation
// error; an unknown ID is a NotFound error from the store.
func (s *Service) ExecutePlaybook(ctx context.Context, playbookID uuid.UUID, incident *core.Incident) (*Execution, error) {
	pb, err := s.store.GetPlaybook(ctx, playbookID)
	if err != nil {
		return nil, err
	}
	if !pb.Enabled {
		return nil, core.ValidationErrorf("playbook %s is disabled", pb.Name)
	}

	exec, execErr := s.executor.Execute(ctx, pb, incident)
	if exec != nil {
		if err := s.executions.SaveExecution(ctx, exec); err != nil {
			s.logger.Errorw("Failed to persist execution trace",
				"execution_id", exec.ID, "playbook", pb.Name, "error", err)
		}
	}
	return exec, execErr
}

// AutoExecuteForIncident runs every matching playbook against the
// incident. A failing playbook does not stop the rest; the traces of
// all runs are returned. No-op when auto-execute is disabled.
func (s *Service) AutoExecuteForIncident(ctx context.Context, incident *core.Incident) ([]*Execution, error) {
	if !s.autoExecute {
		return nil, nil
	}

	matched, err := s.FindMatching(ctx, incident)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	s.logger.Infow("Auto-executing playbooks",
		"incident_id", incident.ID, "matched", len(matched))

	execs := make([]*Execution, 0, len(matched))
	for _, pb := range matched {
		exec, err := s.ExecutePlaybook(ctx, pb.ID, incident)
		if err != nil {
			s.logger.Errorw("Auto-execution aborted",
				"playbook", pb.Name, "incident_id", incident.ID, "error", err)
		}
		if exec != nil {
			execs = append(execs, exec)
		}
		if ctx.Err() != nil {
			return execs, ctx.Err()
		}
	}
	return execs, nil
}

// GetExecution returns one execution trace by ID.
func (s *Service) GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error) {
	return s.executions.GetExecution(ctx, id)
}

// ListExecutionsForIncident returns the execution history of one incident.
func (s *Service) ListExecutionsForIncident(ctx context.Context, incidentID uuid.UUID) ([]*Execution, error) {
	return s.executions.ListExecutionsForIncident(ctx, incidentID)
}

// ListExecutions returns all recorded executions.
func (s *Service) ListExecutions(ctx context.Context) ([]*Execution, error) {
	return s.executions.ListExecutions(ctx)
}

// GetStats aggregates catalog and execution counters.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	playbooks, err := s.store.ListPlaybooks(ctx)
	if err != nil {
		return nil, err
	}
	execs, err := s.executions.ListExecutions(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalPlaybooks:     len(playbooks),
		TotalExecutions:    len(execs),
		AutoExecuteEnabled: s.autoExecute,
	}
	for _, pb := range playbooks {
		if pb.Enabled {
			stats.EnabledPlaybooks++
		}
	}
	for _, exec := range execs {
		switch exec.Status {
		case StatusCompleted:
			stats.SuccessfulExecutions++
		case StatusFailed:
			stats.FailedExecutions++
		}
	}
	return stats, nil
}

// validateSteps applies the structural rules the tag-based validator
// cannot express: unique step IDs, parseable timeouts, and parseable
// condition expressions.
func validateSteps(pb *Playbook) error {
	seen := make(map[string]struct{}, len(pb.Steps))
	for _, step := range pb.Steps {
		if _, dup := seen[step.ID]; dup {
			return core.ValidationErrorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = struct{}{}

		if _, err := ParseTimeout(step.Timeout); err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}
		if _, err := parseCondition(step.Condition); err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}
	}
	return nil
}
