package signal

import "fmt"

// MovingAverage returns the average of x over a sliding window of the
// given width, aligned like a "same" convolution: the output has the
// length of x, and samples outside x count as zero. The window must lie
// in [1, len(x)].
func MovingAverage(x []float64, window int) ([]float64, error) {
	if window < 1 || window > len(x) {
		return nil, fmt.Errorf("%w: width %d for %d samples", ErrInvalidWindow, window, len(x))
	}
	out := make([]float64, len(x))
	if window == 1 {
		copy(out, x)
		return out, nil
	}

	shift := (window - 1) / 2
	scale := 1 / float64(window)
	for i := range out {
		var sum float64
		for j := range window {
			k := i + shift - j
			if k >= 0 && k < len(x) {
				sum += x[k]
			}
		}
		out[i] = sum * scale
	}
	return out, nil
}
