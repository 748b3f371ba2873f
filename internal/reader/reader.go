package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/saxsflow/internal/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// maxLineSize bounds a single input line.
const maxLineSize = 1024 * 1024

// ReadFile reads the curve stored at path. The returned sample carries
// the path under model.KeySource.
func ReadFile(path string) (*model.Sample, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s.WithMetadata(model.KeySource, path), nil
}

// Read parses a curve from r.
//
// Every data row must have the same number of columns. When only some
// rows carry an uncertainty, the column is ambiguous and Read fails.
func Read(r io.Reader) (*model.Sample, error) {
	var (
		q, intensity, sigma []float64
		columns             int
		seenData            bool
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		values, err := parseRow(text)
		if err != nil {
			if !seenData {
				// A leading non-numeric line is a header.
				seenData = true
				continue
			}
			return nil, &RowError{Line: line, Err: err}
		}
		seenData = true

		if columns == 0 {
			columns = len(values)
		}
		if len(values) != columns {
			return nil, &RowError{
				Line: line,
				Err:  fmt.Errorf("%w: expected %d columns, got %d", ErrMalformedRow, columns, len(values)),
			}
		}

		q = append(q, values[0])
		intensity = append(intensity, values[1])
		if columns == 3 {
			sigma = append(sigma, values[2])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read curve: %w", err)
	}
	if len(q) == 0 {
		return nil, ErrNoData
	}

	return model.NewSample(q, intensity, sigma)
}

// parseRow splits a line on commas, semicolons or whitespace and parses
// two or three numbers.
func parseRow(text string) ([]float64, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("%w: expected 2 or 3 columns, got %d", ErrMalformedRow, len(fields))
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %q is not a number", ErrMalformedRow, i+1, f)
		}
		values[i] = v
	}
	return values, nil
}

// Summary describes a loaded curve.
type Summary struct {
	Points        int
	QMin, QMax    float64
	IntensityMax  float64
	IntensityMean float64
	HasError      bool
}

// Summarize computes a Summary of s.
func Summarize(s *model.Sample) Summary {
	q, intensity := s.Q(), s.Intensity()
	return Summary{
		Points:        s.Len(),
		QMin:          floats.Min(q),
		QMax:          floats.Max(q),
		IntensityMax:  floats.Max(intensity),
		IntensityMean: stat.Mean(intensity, nil),
		HasError:      s.HasError(),
	}
}
