package model

import (
	"math"
	"reflect"
	"slices"
)

// Sample is one measured scattering curve: scattering vector q, the
// measured intensity at each q, an optional per-point intensity error,
// and free-form metadata.
//
// A Sample is immutable. Every With* method returns a new Sample that
// shares the untouched fields with the receiver, so a stage can hand its
// input to someone else without worrying about later edits. The slices
// returned by the accessors must not be modified by callers.
//
// Invariant: len(q) == len(intensity) == len(intensityError or q), q is
// non-empty, finite and strictly increasing.
type Sample struct {
	q              []float64
	intensity      []float64
	intensityError []float64
	metadata       Metadata
}

// NewSample builds a Sample from copies of the given arrays.
// intensityError may be nil. It returns an *InvariantError when the
// arrays do not satisfy the Sample invariants.
func NewSample(q, intensity, intensityError []float64) (*Sample, error) {
	s := &Sample{
		q:              slices.Clone(q),
		intensity:      slices.Clone(intensity),
		intensityError: slices.Clone(intensityError),
		metadata:       Metadata{},
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// validate checks the structural invariants.
func (s *Sample) validate() error {
	if len(s.q) == 0 {
		return &InvariantError{Field: "q", Index: -1, Reason: "empty"}
	}
	if len(s.intensity) != len(s.q) {
		return &InvariantError{Field: "intensity", Index: -1, Reason: "length differs from q"}
	}
	if s.intensityError != nil && len(s.intensityError) != len(s.q) {
		return &InvariantError{Field: "intensity_error", Index: -1, Reason: "length differs from q"}
	}
	for i, v := range s.q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvariantError{Field: "q", Index: i, Reason: "not finite"}
		}
		if i > 0 && v <= s.q[i-1] {
			return &InvariantError{Field: "q", Index: i, Reason: "not strictly increasing"}
		}
	}
	return nil
}

// Len returns the number of points.
func (s *Sample) Len() int { return len(s.q) }

// Q returns the scattering vector values.
func (s *Sample) Q() []float64 { return s.q }

// Intensity returns the intensity values.
func (s *Sample) Intensity() []float64 { return s.intensity }

// IntensityError returns the per-point intensity error, or nil.
func (s *Sample) IntensityError() []float64 { return s.intensityError }

// HasError reports whether the sample carries intensity errors.
func (s *Sample) HasError() bool { return s.intensityError != nil }

// Metadata returns a copy of the sample metadata.
func (s *Sample) Metadata() Metadata { return s.metadata.Clone() }

// Value returns the metadata value stored under key.
func (s *Sample) Value(key string) (any, bool) {
	v, ok := s.metadata[key]
	return v, ok
}

// MeanSpacing returns the mean distance between consecutive q values,
// or 0 for a single-point sample.
func (s *Sample) MeanSpacing() float64 {
	n := len(s.q)
	if n < 2 {
		return 0
	}
	return (s.q[n-1] - s.q[0]) / float64(n-1)
}

// WithIntensity returns a copy of s with intensity replaced.
func (s *Sample) WithIntensity(intensity []float64) (*Sample, error) {
	out := *s
	out.intensity = slices.Clone(intensity)
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// WithIntensityError returns a copy of s with intensity error replaced.
// A nil slice removes the error column.
func (s *Sample) WithIntensityError(intensityError []float64) (*Sample, error) {
	out := *s
	out.intensityError = slices.Clone(intensityError)
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// WithQ returns a copy of s with q replaced.
func (s *Sample) WithQ(q []float64) (*Sample, error) {
	out := *s
	out.q = slices.Clone(q)
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// WithMetadata returns a copy of s with key set to value.
func (s *Sample) WithMetadata(key string, value any) *Sample {
	out := *s
	out.metadata = s.metadata.Clone()
	out.metadata[key] = value
	return &out
}

// WithoutMetadata returns a copy of s without key.
func (s *Sample) WithoutMetadata(key string) *Sample {
	out := *s
	out.metadata = s.metadata.Clone()
	delete(out.metadata, key)
	return &out
}

// Slice returns the points in [from, to) as a new Sample with the same
// metadata.
func (s *Sample) Slice(from, to int) (*Sample, error) {
	if from < 0 || to > len(s.q) || from >= to {
		return nil, &InvariantError{Field: "q", Index: from, Reason: "slice bounds out of range"}
	}
	out := &Sample{
		q:         slices.Clone(s.q[from:to]),
		intensity: slices.Clone(s.intensity[from:to]),
		metadata:  s.metadata.Clone(),
	}
	if s.intensityError != nil {
		out.intensityError = slices.Clone(s.intensityError[from:to])
	}
	return out, nil
}

// Equal reports whether two samples hold the same arrays and metadata.
func (s *Sample) Equal(other *Sample) bool {
	if s == nil || other == nil {
		return s == other
	}
	if !slices.Equal(s.q, other.q) || !slices.Equal(s.intensity, other.intensity) {
		return false
	}
	if (s.intensityError == nil) != (other.intensityError == nil) {
		return false
	}
	if !slices.Equal(s.intensityError, other.intensityError) {
		return false
	}
	if len(s.metadata) != len(other.metadata) {
		return false
	}
	return reflect.DeepEqual(map[string]any(s.metadata), map[string]any(other.metadata))
}

// Peaks returns the fitted peaks recorded so far.
func (s *Sample) Peaks() []Peak {
	peaks, _ := s.metadata[KeyPeaks].([]Peak) //nolint:errcheck // absent means none
	return peaks
}

// FailedPeaks returns the indices whose fit did not converge.
func (s *Sample) FailedPeaks() []int {
	failed, _ := s.metadata[KeyFailedPeaks].([]int) //nolint:errcheck // absent means none
	return failed
}

// BackgroundFit returns the recorded background fit, if any.
func (s *Sample) BackgroundFit() (BackgroundFit, bool) {
	fit, ok := s.metadata[KeyBackground].(BackgroundFit)
	return fit, ok
}

// Trace returns the names of the stages that processed this sample.
func (s *Sample) Trace() []string {
	trace, _ := s.metadata[KeyTrace].([]string) //nolint:errcheck // absent means none
	return trace
}

// Source returns the recorded origin of the sample.
func (s *Sample) Source() string {
	src, _ := s.metadata[KeySource].(string) //nolint:errcheck // absent means unknown
	return src
}
