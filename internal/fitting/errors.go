package fitting

import "errors"

var (
	// ErrFitConvergence is returned when a fit cannot reach a minimum that
	// satisfies its bounds: too few points, inconsistent bounds, non-finite
	// model values, or the iteration limit.
	ErrFitConvergence = errors.New("fit did not converge")

	// ErrInvalidInput is returned for malformed calls such as x and y of
	// different lengths or bounds of the wrong size.
	ErrInvalidInput = errors.New("invalid fit input")
)
