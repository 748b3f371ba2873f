package reader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/saxsflow/internal/model"
)

// TestRead tests parsing curves in the supported layouts.
func TestRead(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		input     string
		q         []float64
		intensity []float64
		sigma     []float64
	}{
		{
			name:      "whitespace two columns",
			input:     "0.01 10\n0.02  20\n0.03\t30\n",
			q:         []float64{0.01, 0.02, 0.03},
			intensity: []float64{10, 20, 30},
		},
		{
			name:      "csv with header and comments",
			input:     "# measured 2024-01-01\nq,I,sigma\n0.1,5,0.5\n\n# gap\n0.2,4,0.4\n",
			q:         []float64{0.1, 0.2},
			intensity: []float64{5, 4},
			sigma:     []float64{0.5, 0.4},
		},
		{
			name:      "scientific notation",
			input:     "1e-2;1.5E+3\n2e-2;1.2E+3\n",
			q:         []float64{0.01, 0.02},
			intensity: []float64{1500, 1200},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, err := Read(strings.NewReader(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.q, s.Q()); diff != "" {
				t.Errorf("q mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.intensity, s.Intensity()); diff != "" {
				t.Errorf("intensity mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.sigma, s.IntensityError()); diff != "" {
				t.Errorf("sigma mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestReadErrors tests rejected inputs.
func TestReadErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  error
		line  int
	}{
		{name: "single column", input: "0.1 1\n0.2\n", want: ErrMalformedRow, line: 2},
		{name: "too many columns", input: "0.1 1\n0.2 2 3 4\n", want: ErrMalformedRow, line: 2},
		{name: "mixed column counts", input: "0.1 1 0.1\n0.2 2\n", want: ErrMalformedRow, line: 2},
		{name: "text after data", input: "0.1 1\nq I\n", want: ErrMalformedRow, line: 2},
		{name: "only comments", input: "# nothing\n\n", want: ErrNoData},
		{name: "decreasing q", input: "0.2 1\n0.1 2\n", want: model.ErrInvariantViolation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Read(strings.NewReader(tc.input))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.line == 0 {
				return
			}
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				t.Fatalf("expected *RowError, got %T", err)
			}
			if rowErr.Line != tc.line {
				t.Errorf("line = %d, want %d", rowErr.Line, tc.line)
			}
		})
	}
}

// TestReadFile tests reading from disk.
func TestReadFile(t *testing.T) {
	t.Parallel()

	t.Run("records the source path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "curve.dat")
		if err := os.WriteFile(path, []byte("0.1 1\n0.2 3\n0.3 2\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		s, err := ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if s.Source() != path {
			t.Errorf("Source() = %q, want %q", s.Source(), path)
		}

		want := Summary{Points: 3, QMin: 0.1, QMax: 0.3, IntensityMax: 3, IntensityMean: 2}
		if diff := cmp.Diff(want, Summarize(s)); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.dat")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}
