package signal

import (
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Options filters the local maxima reported by FindPeaks.
// A zero field disables the corresponding filter.
type Options struct {
	// Height is the minimum value of a peak.
	Height float64

	// Prominence is the minimum prominence of a peak.
	Prominence float64

	// Distance is the minimum index distance between two kept peaks.
	// Values of 1 or less keep every peak.
	Distance int
}

// Candidate is a peak found by FindPeaks.
type Candidate struct {
	Index      int
	Value      float64
	Prominence float64
}

// FindPeaks returns the local maxima of x that pass the filters in opts,
// ordered by index.
func FindPeaks(x []float64, opts Options) []Candidate {
	peaks := localMaxima(x)

	if opts.Height > 0 {
		peaks = slices.DeleteFunc(peaks, func(i int) bool {
			return x[i] < opts.Height
		})
	}

	if opts.Distance > 1 {
		peaks = selectByDistance(x, peaks, opts.Distance)
	}

	prom := Prominences(x, peaks)
	out := make([]Candidate, 0, len(peaks))
	for k, i := range peaks {
		if opts.Prominence > 0 && prom[k] < opts.Prominence {
			continue
		}
		out = append(out, Candidate{Index: i, Value: x[i], Prominence: prom[k]})
	}
	return out
}

// localMaxima returns the indices of all local maxima. A flat top is
// reported once at its middle, rounded down. Boundary points are never
// maxima.
func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	last := len(x) - 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance keeps the highest peaks, discarding any peak closer
// than distance samples to an already kept one. Equal heights prefer the
// lower index.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	order := slices.Clone(peaks)
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case x[a] > x[b]:
			return -1
		case x[a] < x[b]:
			return 1
		default:
			return a - b
		}
	})

	var kept []int
	for _, p := range order {
		ok := true
		for _, k := range kept {
			if abs(p-k) < distance {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, p)
		}
	}
	slices.Sort(kept)
	return kept
}

// Prominences returns the prominence of each peak: its height above the
// higher of the two minima found between the peak and the nearest
// strictly higher sample (or the boundary) on each side.
func Prominences(x []float64, peaks []int) []float64 {
	out := make([]float64, len(peaks))
	for k, p := range peaks {
		left := p
		for left > 0 && x[left-1] <= x[p] {
			left--
		}
		right := p
		for right < len(x)-1 && x[right+1] <= x[p] {
			right++
		}
		leftMin := floats.Min(x[left : p+1])
		rightMin := floats.Min(x[p : right+1])
		out[k] = x[p] - max(leftMin, rightMin)
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
