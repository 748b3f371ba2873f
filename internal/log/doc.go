// Package log provides the slog handler and logger constructors used by
// saxsflow.
//
// Stages and the scheduler log whole intensity arrays and candidate sets
// as attributes. Written out verbatim these drown the log, so the
// NumericHandler condenses long numeric slices into a short summary
// before they reach the underlying handler:
//
//	level=DEBUG msg="background fitted" intensity="n=1800 min=0.013 max=412.7"
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//	slog.SetDefault(logger)
package log
