package reader

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRow is returned when a data line does not hold two or
	// three numeric columns.
	ErrMalformedRow = errors.New("malformed row")

	// ErrNoData is returned when a file contains no data lines.
	ErrNoData = errors.New("no data rows")
)

// RowError reports the line a parse failure happened on.
type RowError struct {
	Line int
	Err  error
}

// Error implements error.
func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}
