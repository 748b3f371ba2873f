package model

import (
	"maps"
	"slices"
	"strconv"
)

// PeakIndex is the position of a peak in a sample's arrays, or one of the
// sentinel markers below.
type PeakIndex int

const (
	// UndefinedPeak means no candidate was available to select.
	UndefinedPeak PeakIndex = -1

	// ProcessedPeak means the last selected candidate has been consumed.
	ProcessedPeak PeakIndex = -2
)

// Valid reports whether p points at a real index.
func (p PeakIndex) Valid() bool { return p >= 0 }

// Empty reports whether p is a sentinel. Conditions use it to treat an
// undefined selection like a missing value.
func (p PeakIndex) Empty() bool { return !p.Valid() }

// String returns the index, or the sentinel name.
func (p PeakIndex) String() string {
	switch p {
	case UndefinedPeak:
		return "undefined"
	case ProcessedPeak:
		return "processed"
	default:
		return strconv.Itoa(int(p))
	}
}

// FlowMetadata is the cross-stage state threaded through a scheduler run.
// It is a value type: the helpers return modified copies and never touch
// maps or slices shared with the receiver.
type FlowMetadata struct {
	// Unprocessed maps candidate peak indices to their intensity.
	Unprocessed map[int]float64

	// Current is the peak selected for processing.
	Current PeakIndex

	// Processed is the sorted set of indices already consumed.
	Processed []int
}

// NewFlowMetadata returns the empty flow state used at pipeline start.
func NewFlowMetadata() FlowMetadata {
	return FlowMetadata{
		Unprocessed: map[int]float64{},
		Current:     UndefinedPeak,
	}
}

// WithUnprocessed returns a copy with the candidate set replaced.
func (f FlowMetadata) WithUnprocessed(candidates map[int]float64) FlowMetadata {
	f.Unprocessed = maps.Clone(candidates)
	if f.Unprocessed == nil {
		f.Unprocessed = map[int]float64{}
	}
	return f
}

// WithCurrent returns a copy with Current set.
func (f FlowMetadata) WithCurrent(p PeakIndex) FlowMetadata {
	f.Current = p
	return f
}

// WithProcessed returns a copy with idx added to the processed set.
func (f FlowMetadata) WithProcessed(idx int) FlowMetadata {
	pos, found := slices.BinarySearch(f.Processed, idx)
	if found {
		return f
	}
	f.Processed = slices.Insert(slices.Clone(f.Processed), pos, idx)
	return f
}

// IsProcessed reports whether idx is in the processed set.
func (f FlowMetadata) IsProcessed(idx int) bool {
	_, found := slices.BinarySearch(f.Processed, idx)
	return found
}

// TakeLargest removes the candidate with the largest intensity and
// returns it together with the updated flow, whose Current is set to the
// selection. Equal intensities resolve to the lowest index. With no
// candidates left it returns UndefinedPeak.
func (f FlowMetadata) TakeLargest() (PeakIndex, FlowMetadata) {
	if len(f.Unprocessed) == 0 {
		f.Current = UndefinedPeak
		return UndefinedPeak, f
	}

	best := -1
	for idx, v := range f.Unprocessed {
		if best < 0 || v > f.Unprocessed[best] || (v == f.Unprocessed[best] && idx < best) {
			best = idx
		}
	}

	remaining := maps.Clone(f.Unprocessed)
	delete(remaining, best)
	f.Unprocessed = remaining
	f.Current = PeakIndex(best)
	return f.Current, f
}
