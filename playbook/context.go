package playbook

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"responder/core"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// ExecutionContext is the per-run state of one playbook execution: an
// incident snapshot, a mutable variable store seeded from the incident,
// and the outputs of completed steps. A context is exclusively owned by
// a single execution, but the actions of a parallel step share it from
// multiple goroutines, so variable access is mutex-guarded.
type ExecutionContext struct {
	mu          sync.RWMutex
	incident    *core.Incident
	variables   map[string]interface{}
	stepOutputs map[string]map[string]interface{}
}

// NewExecutionContext seeds a context from an incident. Incident fields
// are exposed as string variables so templates and conditions can
// reference them directly.
func NewExecutionContext(incident *core.Incident) *ExecutionContext {
	return &ExecutionContext{
		incident: incident,
		variables: map[string]interface{}{
			"incident_id":       incident.ID.String(),
			"incident_title":    incident.Title,
			"incident_severity": string(incident.Severity),
			"incident_type":     string(incident.IncidentType),
			"incident_source":   incident.Source,
			"incident_state":    string(incident.State),
		},
		stepOutputs: make(map[string]map[string]interface{}),
	}
}

// Incident returns the incident snapshot this run executes against.
func (ec *ExecutionContext) Incident() *core.Incident {
	return ec.incident
}

// GetVariable returns a variable by name.
func (ec *ExecutionContext) GetVariable(name string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	value, ok := ec.variables[name]
	return value, ok
}

// SetVariable sets a variable.
func (ec *ExecutionContext) SetVariable(name string, value interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.variables[name] = value
}

// Variables returns a copy of the variable map.
func (ec *ExecutionContext) Variables() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	snapshot := make(map[string]interface{}, len(ec.variables))
	for name, value := range ec.variables {
		snapshot[name] = value
	}
	return snapshot
}

// SetStepOutput records a completed step's output and mirrors each key
// into the variable store as steps.<step_id>.<key>, so later steps can
// reference earlier results in templates and conditions.
func (ec *ExecutionContext) SetStepOutput(stepID string, output map[string]interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.stepOutputs[stepID] = output
	for key, value := range output {
		ec.variables[fmt.Sprintf("steps.%s.%s", stepID, key)] = value
	}
}

// StepOutput returns the recorded output of a step.
func (ec *ExecutionContext) StepOutput(stepID string) (map[string]interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	output, ok := ec.stepOutputs[stepID]
	return output, ok
}

// SubstituteString replaces every {{name}} placeholder whose name is a
// known variable. Strings are inserted verbatim, numbers and booleans
// are stringified, nil becomes the literal "null", and composite values
// are JSON-serialized. Unknown placeholders are left untouched: a typo
// in a template must not abort the run.
func (ec *ExecutionContext) SubstituteString(template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := ec.GetVariable(name)
		if !ok {
			return match
		}
		return stringifyValue(value)
	})
}

// SubstituteParameters walks a parameter tree and applies
// SubstituteString to every string leaf. Non-string leaves pass through
// unchanged. The input is not modified.
func (ec *ExecutionContext) SubstituteParameters(params map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(params))
	for key, value := range params {
		result[key] = ec.substituteValue(value)
	}
	return result
}

func (ec *ExecutionContext) substituteValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return ec.SubstituteString(v)
	case map[string]interface{}:
		return ec.SubstituteParameters(v)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ec.substituteValue(item)
		}
		return result
	default:
		return value
	}
}

// EvaluateCondition parses and evaluates a condition expression against
// the context variables. The empty expression is vacuously true. An
// unresolved $variable is a hard error because control flow depends on
// it, unlike template substitution which fails open.
func (ec *ExecutionContext) EvaluateCondition(expr string) (bool, error) {
	cond, err := parseCondition(expr)
	if err != nil {
		return false, err
	}
	return cond.eval(ec.GetVariable)
}

// stringifyValue renders a variable for template insertion.
func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
