package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"responder/core"
)

func testIncident() *core.Incident {
	return core.NewIncident("prometheus", "API latency spike", "p99 above SLO", core.SeverityP1, core.IncidentTypeAvailability)
}

func TestContextSeedsIncidentVariables(t *testing.T) {
	incident := testIncident()
	ec := NewExecutionContext(incident)

	for name, want := range map[string]string{
		"incident_id":       incident.ID.String(),
		"incident_title":    "API latency spike",
		"incident_severity": "P1",
		"incident_source":   "prometheus",
	} {
		value, ok := ec.GetVariable(name)
		require.True(t, ok, name)
		assert.Equal(t, want, value, name)
	}
}

func TestContextSubstituteString(t *testing.T) {
	ec := NewExecutionContext(testIncident())
	ec.SetVariable("region", "eu-west-1")
	ec.SetVariable("count", float64(3))
	ec.SetVariable("flag", true)
	ec.SetVariable("missing_value", nil)

	tests := []struct {
		template string
		want     string
	}{
		{"region is {{region}}", "region is eu-west-1"},
		{"count: {{count}}", "count: 3"},
		{"flag: {{flag}}", "flag: true"},
		{"value: {{missing_value}}", "value: null"},
		{"spaced {{ region }}", "spaced eu-west-1"},
		{"no placeholders", "no placeholders"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ec.SubstituteString(tt.template), tt.template)
	}
}

func TestContextUnknownPlaceholderLeftUntouched(t *testing.T) {
	ec := NewExecutionContext(testIncident())
	assert.Equal(t, "hello {{nope}}", ec.SubstituteString("hello {{nope}}"))
}

func TestContextSubstituteParameters(t *testing.T) {
	ec := NewExecutionContext(testIncident())
	ec.SetVariable("target", "api-gateway")

	params := map[string]interface{}{
		"message": "restarting {{target}}",
		"nested": map[string]interface{}{
			"service": "{{target}}",
		},
		"list":  []interface{}{"{{target}}", float64(1)},
		"count": float64(2),
	}

	result := ec.SubstituteParameters(params)

	assert.Equal(t, "restarting api-gateway", result["message"])
	assert.Equal(t, "api-gateway", result["nested"].(map[string]interface{})["service"])
	assert.Equal(t, "api-gateway", result["list"].([]interface{})[0])
	assert.Equal(t, float64(1), result["list"].([]interface{})[1])
	assert.Equal(t, float64(2), result["count"])

	// Input untouched.
	assert.Equal(t, "restarting {{target}}", params["message"])
}

func TestContextStepOutputsBecomeVariables(t *testing.T) {
	ec := NewExecutionContext(testIncident())
	ec.SetStepOutput("probe", map[string]interface{}{
		"status_code": 200,
		"latency_ms":  float64(42),
	})

	value, ok := ec.GetVariable("steps.probe.status_code")
	require.True(t, ok)
	assert.Equal(t, 200, value)

	output, ok := ec.StepOutput("probe")
	require.True(t, ok)
	assert.Equal(t, float64(42), output["latency_ms"])

	result, err := ec.EvaluateCondition("$steps.probe.latency_ms < 100")
	require.NoError(t, err)
	assert.True(t, result)
}

func TestContextEvaluateCondition(t *testing.T) {
	ec := NewExecutionContext(testIncident())

	result, err := ec.EvaluateCondition(`$incident_severity == "P1"`)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = ec.EvaluateCondition(`$incident_severity == "P3"`)
	require.NoError(t, err)
	assert.False(t, result)

	_, err = ec.EvaluateCondition("$nonexistent == 1")
	require.Error(t, err)
}
