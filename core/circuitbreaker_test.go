package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 3, CoolOff: time.Minute})

	assert.Equal(t, BreakerClosed, cb.State())
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrBreakerOpen)
}

func TestBreakerSuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 2, CoolOff: time.Minute})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, BreakerClosed, cb.State(), "success resets the failure count")
	assert.NoError(t, cb.Allow())
}

func TestBreakerHalfOpenAfterCoolOff(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, CoolOff: 10 * time.Millisecond, MaxProbes: 1})

	cb.RecordFailure()
	assert.ErrorIs(t, cb.Allow(), ErrBreakerOpen)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow(), "one probe admitted after cool-off")
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrBreakerOpen, "probe budget exhausted")

	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, CoolOff: 10 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrBreakerOpen)
}

func TestBreakerZeroConfigUsesDefaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})
	def := DefaultBreakerConfig()

	for i := 0; i < def.MaxFailures-1; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
}
