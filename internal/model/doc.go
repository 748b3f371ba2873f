// Package model defines the data structures shared by every saxsflow package.
//
// This package contains the following main types:
//   - Sample: one immutable scattering curve (q, intensity, intensity error, metadata)
//   - FlowMetadata: the cross-stage peak bookkeeping threaded through a run
//   - Peak and BackgroundFit: per-run fit results
//   - Result: the summary handed to reports and the run store
//
// Design decision: models live in their own package so that pipeline,
// stage, kernel and report code can all use them without import cycles.
package model
