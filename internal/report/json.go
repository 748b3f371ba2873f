package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/saxsflow/internal/model"
)

// JSONWriter outputs results in JSON format for tool integration.
//
// Design decision: standard encoding/json; model.Result already carries
// the JSON tags and the text marshalling of peak statuses.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one result as a JSON object.
func (w *JSONWriter) Write(result *model.Result) (int, error) {
	return w.writeJSON(result)
}

// WriteBatch outputs the results as a JSON array.
func (w *JSONWriter) WriteBatch(results []*model.Result) (int, error) {
	return w.writeJSON(nonNil(results))
}

// writeJSON marshals v and writes it with a trailing newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps results with the version that produced them.
type JSONReport struct {
	// Version is the saxsflow version that generated this report.
	Version string `json:"version"`

	// Results are the analysis results.
	Results []*model.Result `json:"results"`

	// Summary counts outcomes over all results.
	Summary BatchSummary `json:"summary"`
}

// BatchSummary counts outcomes over a batch.
type BatchSummary struct {
	Files       int `json:"files"`
	Failed      int `json:"failed"`
	Saturated   int `json:"saturated"`
	FittedPeaks int `json:"fitted_peaks"`
	FailedPeaks int `json:"failed_peaks"`
}

// Summarize counts outcomes over results. Nil entries are skipped.
func Summarize(results []*model.Result) BatchSummary {
	var s BatchSummary
	for _, r := range nonNil(results) {
		s.Files++
		if r.Failed() {
			s.Failed++
		}
		if r.Stats.Saturated {
			s.Saturated++
		}
		s.FittedPeaks += r.CountByStatus(model.PeakFitted)
		s.FailedPeaks += r.CountByStatus(model.PeakFitFailed)
	}
	return s
}

// FullJSONWriter outputs results wrapped in a JSONReport.
type FullJSONWriter struct {
	*JSONWriter

	// version is the saxsflow version string.
	version string
}

// NewFullJSONWriter creates a writer for versioned reports.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs one result wrapped with metadata.
func (w *FullJSONWriter) Write(result *model.Result) (int, error) {
	return w.WriteBatch([]*model.Result{result})
}

// WriteBatch outputs the results wrapped with metadata.
func (w *FullJSONWriter) WriteBatch(results []*model.Result) (int, error) {
	results = nonNil(results)
	return w.writeJSON(&JSONReport{
		Version: w.version,
		Results: results,
		Summary: Summarize(results),
	})
}
