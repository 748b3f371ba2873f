package report

import (
	"io"
	"strings"

	"github.com/nao1215/saxsflow/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report of one analysis run.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.Result) (int, error)

	// WriteBatch outputs the reports of several runs, with an overview
	// of the whole batch first.
	WriteBatch(results []*model.Result) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
//
// Design decision: a separate type rather than io.MultiWriter, because
// each Writer renders its own format from the result.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch outputs the batch report to all configured Writers.
func (m *MultiWriter) WriteBatch(results []*model.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// title turns an identifier such as "fit_failed" or "process_peak" into
// a display label ("Fit Failed").
func title(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// statusText returns a short run status.
func statusText(r *model.Result) string {
	switch {
	case r.Failed():
		return "Error - " + r.Error
	case r.Stats.Saturated:
		return "Saturated (stage requests were rejected)"
	default:
		return "Complete"
	}
}

// nonNil drops nil entries, which a cancelled batch leaves behind.
func nonNil(results []*model.Result) []*model.Result {
	out := make([]*model.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
