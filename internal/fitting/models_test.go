package fitting

import (
	"math"
	"testing"
)

// TestModels tests the closed-form model functions.
func TestModels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		model Model
		x     float64
		p     []float64
		want  float64
	}{
		{"gaussian at centre", Gaussian(1), 1, []float64{0.5, 3}, 3},
		{"gaussian one sigma away", Gaussian(1), 1.5, []float64{0.5, 3}, 3 * math.Exp(-1)},
		{"parabola at centre", Parabola(2), 2, []float64{1, 4}, 4},
		{"parabola at sigma", Parabola(2), 3, []float64{1, 4}, 0},
		{"hyperbola", Hyperbola, 2, []float64{2, 8}, 2},
		{"exponent", Exponent, 0, []float64{3, 5}, 5},
		{"gaussian sum", GaussianSum, 0, []float64{0, 1, 1, 0, 2, 1}, 3},
		{"gaussian sum ignores partial group", GaussianSum, 0, []float64{0, 1, 1, 0}, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.model(tc.x, tc.p); math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
