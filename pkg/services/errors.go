package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no analysis exists for an id.
	ErrNotFound = errors.New("analysis not found")

	// ErrQueueFull is returned when the dispatch queue is at capacity.
	// Retryable: callers should back off and resubmit.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
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
