/*
errors.go - Centralized error types for the care engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is / errors.As, never by message text.

ERROR CATEGORIES:
  1. Validation errors - Bad rule strings, bad intervals, overlaps
  2. Lookup errors - Unknown reminder/occurrence/availability/senior ids
  3. Store errors - Database-level failures, wrapped with context

  A duplicate-key insert into the occurrence table is NOT an error category:
  stores resolve it to the existing row.

SEE ALSO:
  - store.go: Contracts that return these errors
  - api/handlers.go: Maps categories to HTTP status codes
*/
package care

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input violates a business rule.
	// Nothing is written when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	// Not-found and not-authorized are indistinguishable at this layer.
	ErrNotFound = errors.New("not found")
)

// Messages surfaced directly to users.
const (
	MsgOverlap        = "overlaps with existing availability"
	MsgEndBeforeStart = "must be after start time"
	MsgDateInPast     = "can't be in the past"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field. Field is "base" when the
// failure concerns the record as a whole (e.g. an overlap).
type ValidationError struct {
	Field   string
	Message string
	Err     error // underlying cause, if any
}

func (e *ValidationError) Error() string {
	if e.Field == "" || e.Field == "base" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Kind string // "reminder", "occurrence", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NotFound(kind string, id any) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
