package playbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayFixed(t *testing.T) {
	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, 5*time.Second, Delay(BackoffFixed, attempt))
	}
}

func TestDelayLinear(t *testing.T) {
	assert.Equal(t, 5*time.Second, Delay(BackoffLinear, 0))
	assert.Equal(t, 10*time.Second, Delay(BackoffLinear, 1))
	assert.Equal(t, 15*time.Second, Delay(BackoffLinear, 2))
}

func TestDelayExponential(t *testing.T) {
	assert.Equal(t, 1*time.Second, Delay(BackoffExponential, 0))
	assert.Equal(t, 2*time.Second, Delay(BackoffExponential, 1))
	assert.Equal(t, 4*time.Second, Delay(BackoffExponential, 2))
	assert.Equal(t, 256*time.Second, Delay(BackoffExponential, 8))

	// Capped at 5 minutes.
	assert.Equal(t, 5*time.Minute, Delay(BackoffExponential, 9))
	assert.Equal(t, 5*time.Minute, Delay(BackoffExponential, 40))
	assert.Equal(t, 5*time.Minute, Delay(BackoffExponential, 100))
}

func TestDelayDefaultsToExponential(t *testing.T) {
	assert.Equal(t, Delay(BackoffExponential, 3), Delay(BackoffStrategy(""), 3))
}

func TestDelayNegativeAttempt(t *testing.T) {
	assert.Equal(t, 1*time.Second, Delay(BackoffExponential, -1))
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", defaultStepTimeout},
		{"30s", 30 * time.Second},
		{"10m", 10 * time.Minute},
		{"1h", time.Hour},
		{"  5s ", 5 * time.Second},
	}

	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseTimeoutInvalid(t *testing.T) {
	for _, in := range []string{"5", "s", "5d", "abc", "-5s", "5.5m"} {
		_, err := ParseTimeout(in)
		assert.Error(t, err, in)
	}
}
