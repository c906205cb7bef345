package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"responder/core"
)

func resolver(vars map[string]interface{}) variableResolver {
	return func(name string) (interface{}, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func evalExpr(t *testing.T, expr string, vars map[string]interface{}) (bool, error) {
	t.Helper()
	cond, err := parseCondition(expr)
	require.NoError(t, err)
	return cond.eval(resolver(vars))
}

func TestConditionEmptyIsTrue(t *testing.T) {
	result, err := evalExpr(t, "", nil)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = evalExpr(t, "   ", nil)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestConditionEquality(t *testing.T) {
	vars := map[string]interface{}{
		"severity": "P1",
		"count":    float64(5),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`$severity == "P1"`, true},
		{`$severity == "P2"`, false},
		{`$severity != "P2"`, true},
		{`$count == 5`, true},
		{`$count != 5`, false},
		{`"P1" == "P1"`, true},
	}

	for _, tt := range tests {
		result, err := evalExpr(t, tt.expr, vars)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, result, tt.expr)
	}
}

func TestConditionNumericStringNeverEqualsNumber(t *testing.T) {
	vars := map[string]interface{}{"x": "5"}

	result, err := evalExpr(t, "$x == 5", vars)
	require.NoError(t, err)
	assert.False(t, result, "string \"5\" must not equal number 5")

	// Relational operators do coerce numeric strings.
	result, err = evalExpr(t, "$x >= 5", vars)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestConditionRelational(t *testing.T) {
	vars := map[string]interface{}{"count": float64(10)}

	tests := []struct {
		expr string
		want bool
	}{
		{"$count > 5", true},
		{"$count < 5", false},
		{"$count >= 10", true},
		{"$count <= 10", true},
		{"$count > 10", false},
		{"$count < 10", false},
	}

	for _, tt := range tests {
		result, err := evalExpr(t, tt.expr, vars)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, result, tt.expr)
	}
}

func TestConditionTwoCharOperatorNotSplitAsOneChar(t *testing.T) {
	// ">=" must not be read as ">" with operand "=10".
	vars := map[string]interface{}{"count": float64(10)}
	result, err := evalExpr(t, "$count>=10", vars)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestConditionRelationalNonNumericFails(t *testing.T) {
	vars := map[string]interface{}{"severity": "high"}
	_, err := evalExpr(t, `$severity > 5`, vars)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestConditionBooleanVariableForm(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"false", false},
		{"yes", false},
		{float64(1), false},
	}

	for _, tt := range tests {
		result, err := evalExpr(t, "$flag", map[string]interface{}{"flag": tt.value})
		require.NoError(t, err)
		assert.Equal(t, tt.want, result, "flag=%v", tt.value)
	}
}

func TestConditionMissingVariableIsError(t *testing.T) {
	_, err := evalExpr(t, "$missing == 1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = evalExpr(t, "$missing", nil)
	require.Error(t, err)
}

func TestConditionOperatorInsideQuotesIgnored(t *testing.T) {
	vars := map[string]interface{}{"msg": "a>b"}
	result, err := evalExpr(t, `$msg == "a>b"`, vars)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestConditionParseErrors(t *testing.T) {
	for _, expr := range []string{
		"$ == 1",
		"== 1",
		"$count >",
		`"unterminated`,
	} {
		_, err := parseCondition(expr)
		assert.Error(t, err, expr)
	}
}

func TestConditionLiteralTypes(t *testing.T) {
	vars := map[string]interface{}{
		"enabled": true,
		"count":   float64(3),
	}

	result, err := evalExpr(t, "$enabled == true", vars)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = evalExpr(t, "$count == 3.0", vars)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestConditionCacheReturnsSameResult(t *testing.T) {
	vars := map[string]interface{}{"count": float64(2)}
	for i := 0; i < 3; i++ {
		result, err := evalExpr(t, "$count >= 2", vars)
		require.NoError(t, err)
		assert.True(t, result)
	}
}
