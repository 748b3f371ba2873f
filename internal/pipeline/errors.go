package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNilSample is returned when a stage produces no sample.
	ErrNilSample = errors.New("stage returned nil sample")

	// ErrNoNextStage is returned when a chaining policy fires without a
	// stage factory.
	ErrNoNextStage = errors.New("chaining policy has no next stage")
)

// StageError reports a fatal failure of one stage during a run.
type StageError struct {
	// Stage is the name of the failing stage.
	Stage string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}
