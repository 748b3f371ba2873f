// Package signal provides the one-dimensional signal primitives used by
// the peak extraction stages: local-maximum peak search with height,
// distance and prominence filtering, and a moving-average smoother.
//
// Both follow the conventions of the widely used SciPy and NumPy
// routines, so results can be cross-checked against existing analyses:
// plateaus resolve to their middle sample, the distance filter keeps the
// highest peaks first, and the moving average uses "same" alignment with
// zero padding.
package signal
