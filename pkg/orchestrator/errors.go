package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session or classroom id is unknown
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrPreconditionFailed is returned when an operation is not valid for
	// the session's mode or channel
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInternal is returned when an agent worker failed or a runtime
	// invariant was violated
	ErrInternal = errors.New("internal error")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap makes validation errors match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
