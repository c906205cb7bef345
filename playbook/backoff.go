package playbook

import (
	"strconv"
	"strings"
	"time"

	"responder/core"
)

// Backoff delay constants. Exponential delays cap at maxBackoff so a
// misconfigured retry count cannot stall an execution for hours.
const (
	fixedBackoffDelay = 5 * time.Second
	linearBackoffUnit = 5 * time.Second
	maxBackoff        = 5 * time.Minute
)

// Delay returns the pause before retry attempt n (0-based: the delay
// after the first failed attempt is Delay(strategy, 0)). The result is
// a pure function of the attempt number, which keeps retry schedules
// reproducible in audit traces.
func Delay(strategy BackoffStrategy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	switch strategy {
	case BackoffFixed:
		return fixedBackoffDelay
	case BackoffLinear:
		return time.Duration(attempt+1) * linearBackoffUnit
	default:
		// Exponential is the default strategy: 1s, 2s, 4s, ... capped.
		if attempt > 62 {
			return maxBackoff
		}
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > maxBackoff || delay <= 0 {
			return maxBackoff
		}
		return delay
	}
}

// defaultStepTimeout bounds a step's whole attempt sequence when the
// playbook does not set one.
const defaultStepTimeout = 5 * time.Minute

// ParseTimeout parses a step timeout string of the form "30s", "10m" or
// "1h". The empty string yields the default step timeout.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultStepTimeout, nil
	}
	if len(s) < 2 {
		return 0, core.ValidationErrorf("invalid timeout %q", s)
	}

	value, err := strconv.ParseUint(s[:len(s)-1], 10, 32)
	if err != nil {
		return 0, core.ValidationErrorf("invalid timeout number %q", s[:len(s)-1])
	}

	switch s[len(s)-1] {
	case 's':
		return time.Duration(value) * time.Second, nil
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	default:
		return 0, core.ValidationErrorf("invalid timeout unit %q", s[len(s)-1:])
	}
}
