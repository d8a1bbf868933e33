/*
errors.go - Centralized error types for the presence engine

PURPOSE:
  All error types in one place so the HTTP layer can classify them with
  errors.Is / errors.As without knowing which component raised them.

ERROR CATEGORIES:
  1. Validation - missing or malformed input (client error, no state change)
  2. Not found  - employee or record does not exist
  3. Duplicate  - the per-day uniqueness invariant rejected a create
  4. Store      - connectivity or query failure (server error)

NOTE:
  A denied admission is NOT an error. Admit returns Granted=false with a
  reason and a nil error.
*/
package presence

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a required input is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an employee or event does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent is returned when an event of the same kind already
	// exists for the employee on that calendar day.
	ErrDuplicateEvent = errors.New("event already recorded for this day")

	// ErrStore wraps persistence failures.
	ErrStore = errors.New("store failure")

	// ErrNotScheduled is returned by the daily resolver when no shift starts
	// on the requested weekday.
	ErrNotScheduled = errors.New("no scheduled work on this day")

	// ErrLockUnavailable is returned when the admission lock cannot be taken.
	ErrLockUnavailable = errors.New("admission lock unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateEventError reports a uniqueness violation and, when known, the
// event that already occupies the slot.
type DuplicateEventError struct {
	EmployeeID EmployeeID
	Kind       EventKind
	Date       Day
	Existing   *Event
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("%s already recorded for %s on %s", e.Kind, e.EmployeeID, e.Date)
}

func (e *DuplicateEventError) Unwrap() error { return ErrDuplicateEvent }

// StoreError wraps an underlying persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateEvent)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
