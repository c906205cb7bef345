package core

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the current state of a circuit breaker.
type BreakerState string

const (
	// BreakerClosed means requests pass through normally.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means requests fail immediately.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means a limited number of probe requests are allowed.
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned by Allow while the breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int
	// CoolOff is how long the breaker stays open before allowing a probe.
	CoolOff time.Duration
	// MaxProbes is the number of concurrent requests allowed half-open.
	MaxProbes int
}

// DefaultBreakerConfig returns the defaults used for notification channels.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 3,
		CoolOff:     60 * time.Second,
		MaxProbes:   1,
	}
}

// CircuitBreaker guards an unreliable downstream with the standard
// closed/open/half-open state machine.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failures     int
	probes       int
	lastFailTime time.Time
}

// NewCircuitBreaker creates a breaker in the closed state. Zero or
// negative config fields fall back to the defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.CoolOff <= 0 {
		cfg.CoolOff = def.CoolOff
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = def.MaxProbes
	}
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed}
}

// Allow reports whether a request may proceed. In the open state it
// returns ErrBreakerOpen until the cool-off elapses, then transitions to
// half-open and admits up to MaxProbes requests.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.lastFailTime) < cb.cfg.CoolOff {
			return ErrBreakerOpen
		}
		cb.state = BreakerHalfOpen
		cb.probes = 0
		fallthrough
	case BreakerHalfOpen:
		if cb.probes >= cb.cfg.MaxProbes {
			return ErrBreakerOpen
		}
		cb.probes++
	}
	return nil
}

// RecordSuccess resets the breaker to closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
	cb.probes = 0
}

// RecordFailure counts a failure; a half-open failure or reaching
// MaxFailures while closed reopens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailTime = time.Now()
	if cb.state == BreakerHalfOpen || cb.failures >= cb.cfg.MaxFailures {
		cb.state = BreakerOpen
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
