package model

import "maps"

// Metadata is a string-keyed bag of heterogeneous values.
// Values stored in a Metadata are treated as immutable: code that wants a
// different slice or map stores a new one instead of editing the old one.
type Metadata map[string]any

// Well-known metadata keys. Stages agree on these names so that a value
// produced two hops earlier can be read without knowing who wrote it.
const (
	// KeySource is the origin of a sample, usually the input file path.
	KeySource = "source"

	// KeyUnprocessed holds the candidate peaks (map[int]float64) that still
	// need fitting.
	KeyUnprocessed = "unprocessed"

	// KeyCurrent holds the PeakIndex currently being processed.
	KeyCurrent = "current"

	// KeyProcessed holds the sorted []int of peak indices already consumed.
	KeyProcessed = "processed"

	// KeyPeaks holds the []Peak results appended by the peak fitting stage.
	KeyPeaks = "peaks"

	// KeyFailedPeaks holds the []int of indices whose fit did not converge.
	KeyFailedPeaks = "failed_peaks"

	// KeyBackground holds the BackgroundFit produced by background subtraction.
	KeyBackground = "background"

	// KeyTrace holds the []string of stage names in execution order.
	KeyTrace = "trace"

	// KeyStats holds the RunStats of the scheduler run that produced the sample.
	KeyStats = "stats"
)

// Clone returns a shallow copy of m. A nil Metadata clones to an empty one.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}
