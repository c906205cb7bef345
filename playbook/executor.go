package playbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"responder/core"
	"responder/events"
	"responder/metrics"
)

// Executor runs playbooks against incidents and produces auditable
// execution traces. Step failures do not abort the run: every declared
// step gets a result, and the execution fails if any step failed.
type Executor struct {
	registry *Registry
	bus      events.Bus
	logger   *zap.SugaredLogger

	// backoffDelay is Delay in production; tests shrink it.
	backoffDelay func(BackoffStrategy, int) time.Duration
}

// NewExecutor creates an executor. A nil bus disables event publishing.
func NewExecutor(registry *Registry, bus events.Bus, logger *zap.SugaredLogger) *Executor {
	if bus == nil {
		bus = events.NopBus{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{
		registry:     registry,
		bus:          bus,
		logger:       logger,
		backoffDelay: Delay,
	}
}

// Execute runs every step of the playbook against the incident and
// returns the completed trace. The returned error is non-nil only when
// the context was canceled mid-run; step and action failures are
// recorded in the trace instead.
func (e *Executor) Execute(ctx context.Context, pb *Playbook, incident *core.Incident) (*Execution, error) {
	exec := &Execution{
		ID:          uuid.New(),
		PlaybookID:  pb.ID,
		IncidentID:  incident.ID,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
		StepResults: make(map[string]*StepResult, len(pb.Steps)),
	}

	ec := NewExecutionContext(incident)
	for name, value := range pb.Variables {
		ec.SetVariable(name, value)
	}

	e.logger.Infow("Starting playbook execution",
		"playbook", pb.Name,
		"execution_id", exec.ID,
		"incident_id", incident.ID,
		"steps", len(pb.Steps))

	metrics.ActiveExecutions.Inc()
	defer metrics.ActiveExecutions.Dec()

	e.publish(ctx, events.Event{
		Type:        events.EventPlaybookStarted,
		IncidentID:  incident.ID.String(),
		PlaybookID:  pb.ID.String(),
		ExecutionID: exec.ID.String(),
		ActionCount: pb.ActionCount(),
	})

	var failedSteps []string
	for i := range pb.Steps {
		step := &pb.Steps[i]
		exec.CurrentStep = step.ID

		result := e.runStep(ctx, step, ec)
		exec.StepResults[step.ID] = result

		if result.Status == StatusFailed {
			failedSteps = append(failedSteps, step.ID)
			metrics.StepFailuresTotal.WithLabelValues(string(step.Kind)).Inc()
			e.logger.Warnw("Step failed",
				"playbook", pb.Name,
				"step", step.ID,
				"attempts", result.Attempts,
				"error", result.Error)
		}

		if ctx.Err() != nil {
			exec.Status = StatusFailed
			exec.Error = fmt.Sprintf("execution aborted: %v", ctx.Err())
			exec.CurrentStep = ""
			exec.CompletedAt = time.Now().UTC()
			e.finalize(ctx, pb, exec)
			return exec, ctx.Err()
		}
	}

	exec.CurrentStep = ""
	exec.CompletedAt = time.Now().UTC()
	if len(failedSteps) > 0 {
		exec.Status = StatusFailed
		exec.Error = fmt.Sprintf("steps failed: %s", strings.Join(failedSteps, ", "))
	} else {
		exec.Status = StatusCompleted
	}

	e.finalize(ctx, pb, exec)
	return exec, nil
}

// finalize records completion metrics and publishes the completed event.
func (e *Executor) finalize(ctx context.Context, pb *Playbook, exec *Execution) {
	duration := exec.CompletedAt.Sub(exec.StartedAt)
	metrics.PlaybookExecutionsTotal.WithLabelValues(pb.Name, string(exec.Status)).Inc()
	metrics.PlaybookExecutionDuration.WithLabelValues(pb.Name).Observe(duration.Seconds())

	e.logger.Infow("Playbook execution finished",
		"playbook", pb.Name,
		"execution_id", exec.ID,
		"status", exec.Status,
		"duration", duration)

	e.publish(ctx, events.Event{
		Type:        events.EventPlaybookCompleted,
		IncidentID:  exec.IncidentID.String(),
		PlaybookID:  exec.PlaybookID.String(),
		ExecutionID: exec.ID.String(),
		Success:     exec.Status == StatusCompleted,
		ActionCount: pb.ActionCount(),
	})
}

// publish sends an event best-effort. A down bus never fails a run.
func (e *Executor) publish(ctx context.Context, event events.Event) {
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warnf("Failed to publish %s event: %v", event.Type, err)
	}
}

// runStep evaluates the step's condition, then executes its actions
// under the step timeout with the configured retry policy. Exactly one
// StepResult comes back, whatever happened.
func (e *Executor) runStep(ctx context.Context, step *Step, ec *ExecutionContext) *StepResult {
	result := &StepResult{
		StepID:    step.ID,
		StartedAt: time.Now().UTC(),
	}

	passed, err := ec.EvaluateCondition(step.Condition)
	if err != nil {
		return failStep(result, 0, fmt.Errorf("condition evaluation failed: %w", err))
	}
	if !passed {
		result.Status = StatusSkipped
		result.Error = fmt.Sprintf("skipped due to condition: %s", step.Condition)
		result.CompletedAt = time.Now().UTC()
		return result
	}

	// Resolve handlers up front: an unregistered action kind is a
	// configuration error and retrying it cannot help.
	handlers := make([]Handler, len(step.Actions))
	for i, action := range step.Actions {
		handler, err := e.registry.Lookup(action.Kind)
		if err != nil {
			return failStep(result, 0, err)
		}
		handlers[i] = handler
	}

	timeout, err := ParseTimeout(step.Timeout)
	if err != nil {
		return failStep(result, 0, err)
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Validation rejects negative retry counts, but steps loaded from
	// storage bypass validation; treat anything below zero as zero so
	// the step still runs once.
	retries := step.Retry
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.StepRetriesTotal.Inc()
			delay := e.backoffDelay(step.Backoff, attempt-1)
			e.logger.Debugw("Retrying step", "step", step.ID, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-stepCtx.Done():
				return failStep(result, attempt, fmt.Errorf("step timed out: %w", stepCtx.Err()))
			}
		}

		output, err := e.runActions(stepCtx, step, handlers, ec)
		if err == nil {
			result.Status = StatusCompleted
			result.Output = output
			result.Attempts = attempt + 1
			result.CompletedAt = time.Now().UTC()
			ec.SetStepOutput(step.ID, output)
			return result
		}

		lastErr = err
		result.Attempts = attempt + 1
		if stepCtx.Err() != nil {
			break
		}
		// Validation errors are configuration mistakes; retrying with
		// the same parameters cannot succeed.
		if errors.Is(err, core.ErrValidation) {
			break
		}
	}

	result.Status = StatusFailed
	result.Error = lastErr.Error()
	result.CompletedAt = time.Now().UTC()
	return result
}

// runActions executes a step's actions once. Sequential steps abort at
// the first failing action; parallel steps launch every action and
// join, collecting all failures. Outputs merge in declaration order.
func (e *Executor) runActions(ctx context.Context, step *Step, handlers []Handler, ec *ExecutionContext) (map[string]interface{}, error) {
	if !step.Parallel {
		merged := make(map[string]interface{})
		for i, action := range step.Actions {
			params := ec.SubstituteParameters(action.Parameters)
			output, err := handlers[i].Execute(ctx, params, ec)
			if err != nil {
				return nil, fmt.Errorf("action %s: %w", action.Kind, err)
			}
			for key, value := range output {
				merged[key] = value
			}
		}
		return merged, nil
	}

	outputs := make([]map[string]interface{}, len(step.Actions))
	actionErrs := make([]error, len(step.Actions))

	var wg sync.WaitGroup
	for i := range step.Actions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := step.Actions[i]
			params := ec.SubstituteParameters(action.Parameters)
			output, err := handlers[i].Execute(ctx, params, ec)
			if err != nil {
				actionErrs[i] = fmt.Errorf("action %s: %w", action.Kind, err)
				return
			}
			outputs[i] = output
		}(i)
	}
	wg.Wait()

	if err := errors.Join(actionErrs...); err != nil {
		return nil, err
	}

	merged := make(map[string]interface{})
	for _, output := range outputs {
		for key, value := range output {
			merged[key] = value
		}
	}
	return merged, nil
}

func failStep(result *StepResult, attempts int, err error) *StepResult {
	result.Status = StatusFailed
	result.Attempts = attempts
	result.Error = err.Error()
	result.CompletedAt = time.Now().UTC()
	return result
}
