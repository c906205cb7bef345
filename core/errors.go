package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the service error taxonomy. Callers classify
// failures with errors.Is rather than matching message text.
var (
	// ErrValidation marks rejected input: a disabled playbook, a malformed
	// condition, an unregistered action kind.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing entity: an unknown playbook or execution
	// id, or an unresolved $variable reference in a condition.
	ErrNotFound = errors.New("not found")
)

// ValidationErrorf wraps ErrValidation with a formatted message.
func ValidationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundErrorf wraps ErrNotFound with a formatted message.
func NotFoundErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
