package storage

import (
	"fmt"

	"responder/core"
)

// Storage error constants. Not-found errors wrap core.ErrNotFound so
// callers can test the category without importing storage.
var (
	// ErrPlaybookNotFound is returned when a playbook is not found
	ErrPlaybookNotFound = fmt.Errorf("%w: playbook", core.ErrNotFound)

	// ErrPlaybookNameExists is returned when a playbook with the same name already exists
	ErrPlaybookNameExists = fmt.Errorf("%w: playbook with this name already exists", core.ErrValidation)

	// ErrExecutionNotFound is returned when an execution trace is not found
	ErrExecutionNotFound = fmt.Errorf("%w: execution", core.ErrNotFound)

	// ErrIncidentNotFound is returned when an incident is not found
	ErrIncidentNotFound = fmt.Errorf("%w: incident", core.ErrNotFound)

	// ErrIncidentExists is returned when saving an incident whose ID is already stored
	ErrIncidentExists = fmt.Errorf("%w: incident already exists", core.ErrValidation)
)
