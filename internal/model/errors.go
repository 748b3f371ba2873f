package model

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is returned when a Sample would break one of its
// structural invariants: equal array lengths and strictly increasing q.
// It is fatal; a Sample is never silently repaired.
var ErrInvariantViolation = errors.New("sample invariant violation")

// InvariantError describes which invariant failed and where.
// It matches ErrInvariantViolation with errors.Is.
type InvariantError struct {
	// Field is the array that broke the invariant ("q", "intensity", "intensity_error").
	Field string

	// Index is the first offending position, or -1 when the failure is
	// about the array as a whole (for example its length).
	Index int

	// Reason is a short human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: %s", ErrInvariantViolation, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s[%d]: %s", ErrInvariantViolation, e.Field, e.Index, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvariantViolation).
func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}
