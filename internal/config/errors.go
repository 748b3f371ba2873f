package config

import "errors"

// Configuration validation errors returned by Config.Validate.
//
// Design decision: sentinel errors let the CLI map failures with
// errors.Is while the messages stay readable on their own.
var (
	// ErrNoInput is returned when no curve file is given.
	ErrNoInput = errors.New("no input specified: provide at least one curve file")

	// ErrInvalidTimeout is returned when the per-file timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the number of files analysed
	// in parallel is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCutPoint is returned when the cut point is negative.
	// Zero keeps the pipeline's own value.
	ErrInvalidCutPoint = errors.New("invalid cut point: must be non-negative")

	// ErrInvalidMaxInsertions is returned when the insertion limit is negative.
	ErrInvalidMaxInsertions = errors.New("invalid max insertions: must be non-negative")
)
