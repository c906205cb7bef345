// Package playbook implements the declarative incident-response
// automation engine: the playbook model, the per-run execution context
// with its templating and condition language, the pluggable action
// registry, the retrying executor, and the catalog service.
package playbook

import (
	"time"

	"github.com/google/uuid"

	"responder/core"
)

// StepKind categorizes the intent of a step for operators reading a run.
type StepKind string

const (
	StepKindNotification   StepKind = "notification"
	StepKindDataCollection StepKind = "data_collection"
	StepKindRemediation    StepKind = "remediation"
	StepKindEscalation     StepKind = "escalation"
	StepKindResolution     StepKind = "resolution"
	StepKindCustom         StepKind = "custom"
)

// ActionKind identifies the handler that executes an action.
type ActionKind string

const (
	ActionWait             ActionKind = "wait"
	ActionNotify           ActionKind = "notify"
	ActionWebhook          ActionKind = "webhook"
	ActionSetVariable      ActionKind = "set_variable"
	ActionHTTPRequest      ActionKind = "http_request"
	ActionResolveIncident  ActionKind = "resolve_incident"
	ActionSeverityIncrease ActionKind = "severity_increase"
	ActionSeverityDecrease ActionKind = "severity_decrease"
)

// BackoffStrategy names a delay curve between retry attempts. The delay
// is a pure function of the attempt number; see Delay.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Action is a single operation performed within a step. OnSuccess and
// OnFailure are reserved branch hints carried through serialization but
// not consumed by the executor; control flow is the declared step order.
type Action struct {
	Kind       ActionKind             `json:"action_type" yaml:"action_type" validate:"required"`
	Parameters map[string]interface{} `json:"parameters" yaml:"parameters"`
	OnSuccess  string                 `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure  string                 `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Step is a unit of execution: one or more actions plus the
// condition/retry/backoff/timeout policy that governs them.
type Step struct {
	ID          string          `json:"id" yaml:"id" validate:"required"`
	Kind        StepKind        `json:"step_type" yaml:"step_type"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Actions     []Action        `json:"actions" yaml:"actions" validate:"required,min=1,dive"`
	Parallel    bool            `json:"parallel" yaml:"parallel"`
	Timeout     string          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry       int             `json:"retry" yaml:"retry" validate:"gte=0"`
	Backoff     BackoffStrategy `json:"backoff" yaml:"backoff"`
	Condition   string          `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Triggers is the predicate deciding which incidents a playbook applies
// to. An empty list is a wildcard for its dimension; non-empty lists
// require membership. All three dimensions must match.
type Triggers struct {
	Severities []core.Severity     `json:"severity_trigger" yaml:"severity_trigger"`
	Types      []core.IncidentType `json:"type_trigger" yaml:"type_trigger"`
	Sources    []string            `json:"source_trigger" yaml:"source_trigger"`
}

// Playbook is a declarative automation recipe: a trigger predicate,
// default variables, and an ordered list of steps.
type Playbook struct {
	ID          uuid.UUID         `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Version     string            `json:"version" yaml:"version" validate:"required"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Owner       string            `json:"owner" yaml:"owner" validate:"required"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"updated_at"`
	Triggers    Triggers          `json:"triggers" yaml:"triggers"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Steps       []Step            `json:"steps" yaml:"steps" validate:"dive"`
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// MatchesIncident reports whether this playbook's triggers select the
// incident. Within a dimension an empty trigger list matches anything;
// across dimensions every trigger must match.
func (p *Playbook) MatchesIncident(incident *core.Incident) bool {
	if !p.Enabled {
		return false
	}

	severityMatch := len(p.Triggers.Severities) == 0
	for _, s := range p.Triggers.Severities {
		if s == incident.Severity {
			severityMatch = true
			break
		}
	}

	typeMatch := len(p.Triggers.Types) == 0
	for _, t := range p.Triggers.Types {
		if t == incident.IncidentType {
			typeMatch = true
			break
		}
	}

	sourceMatch := len(p.Triggers.Sources) == 0
	for _, src := range p.Triggers.Sources {
		if src == incident.Source {
			sourceMatch = true
			break
		}
	}

	return severityMatch && typeMatch && sourceMatch
}

// ExecutionStatus tracks a playbook execution or a single step result.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusSkipped   ExecutionStatus = "skipped"
)

// StepResult is the recorded outcome of one step. Every declared step
// produces exactly one StepResult, including steps skipped by a false
// condition.
type StepResult struct {
	StepID      string                 `json:"step_id"`
	Status      ExecutionStatus        `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Attempts    int                    `json:"attempts"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Succeeded reports whether the step completed without error.
func (r *StepResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

// Execution is the auditable trace of one playbook run against one
// incident. Append-only once finalized.
type Execution struct {
	ID          uuid.UUID              `json:"id"`
	PlaybookID  uuid.UUID              `json:"playbook_id"`
	IncidentID  uuid.UUID              `json:"incident_id"`
	Status      ExecutionStatus        `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at,omitempty"`
	CurrentStep string                 `json:"current_step,omitempty"`
	StepResults map[string]*StepResult `json:"step_results"`
	Error       string                 `json:"error,omitempty"`
}

// ActionCount returns the total number of actions declared across the
// playbook's steps, reported in start/completion events.
func (p *Playbook) ActionCount() int {
	n := 0
	for _, step := range p.Steps {
		n += len(step.Actions)
	}
	return n
}
