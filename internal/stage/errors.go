package stage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when stage configuration is malformed.
	ErrInvalidConfig = errors.New("invalid stage configuration")

	// ErrCutOutOfRange is returned when the cut point leaves no data.
	ErrCutOutOfRange = errors.New("cut point beyond sample length")

	// ErrNonPositiveQ is returned when a power-law background meets q <= 0.
	ErrNonPositiveQ = errors.New("power-law background requires positive q")

	// ErrTooManyFitFailures is returned when peak fits fail more often than
	// the configured limit allows.
	ErrTooManyFitFailures = errors.New("too many failed peak fits")
)

// PeakError reports a fatal failure while processing one peak.
type PeakError struct {
	// Index is the peak position in the sample arrays.
	Index int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PeakError) Error() string {
	return fmt.Sprintf("peak %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *PeakError) Unwrap() error {
	return e.Err
}
