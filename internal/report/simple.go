package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/saxsflow/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for the terminal.
//
// Design decision: plain ASCII without colors, so output can be piped to
// files and other tools unchanged.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints the peak section even when no peak was selected.
	showEmpty bool

	// verbose adds fit uncertainties and the stage trace.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one result in human-readable format.
func (w *SimpleWriter) Write(result *model.Result) (int, error) {
	var sb strings.Builder
	w.writeResult(&sb, result)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteBatch outputs a one-line-per-file overview and then every result.
func (w *SimpleWriter) WriteBatch(results []*model.Result) (int, error) {
	results = nonNil(results)
	summary := Summarize(results)

	var sb strings.Builder
	rule(&sb, "=")
	sb.WriteString("                       SAXSFLOW BATCH SUMMARY\n")
	rule(&sb, "=")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Files:        %d (%d failed, %d saturated)\n", summary.Files, summary.Failed, summary.Saturated)
	fmt.Fprintf(&sb, "Peaks:        %d fitted, %d failed\n\n", summary.FittedPeaks, summary.FailedPeaks)
	for _, r := range results {
		fmt.Fprintf(&sb, "  %-40s %3d peaks  %s\n", r.Source, r.CountByStatus(model.PeakFitted), statusText(r))
	}
	sb.WriteString("\n")

	for _, r := range results {
		w.writeResult(&sb, r)
	}
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeResult(sb *strings.Builder, r *model.Result) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                         SAXSFLOW REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Source:         %s\n", r.Source)
	fmt.Fprintf(sb, "Run ID:         %s\n", r.RunID)
	fmt.Fprintf(sb, "Analysed:       %s\n", r.DateAnalyzed.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Points:         %d (q %s to %s)\n", r.Points, formatFloat(r.QMin), formatFloat(r.QMax))
	fmt.Fprintf(sb, "Stages:         %d executed, %d approved, %d rejected\n",
		r.Stats.Executed, r.Stats.Approved, r.Stats.Rejected)
	fmt.Fprintf(sb, "Status:         %s\n\n", statusText(r))

	if r.Background != nil {
		section(sb, "BACKGROUND")
		fmt.Fprintf(sb, "  %s  a=%s  b=%s  subtracted=%s\n\n",
			title(r.Background.Model),
			formatFloat(r.Background.A),
			formatFloat(r.Background.B),
			formatFloat(r.Background.Coef),
		)
	}

	w.writePeaks(sb, r)

	if w.verbose && len(r.Trace) > 0 {
		section(sb, "STAGE TRACE")
		fmt.Fprintf(sb, "  %s\n\n", strings.Join(r.Trace, " -> "))
	}
}

func (w *SimpleWriter) writePeaks(sb *strings.Builder, r *model.Result) {
	if !r.HasPeaks() && !w.showEmpty {
		return
	}

	section(sb, "PEAKS")
	if !r.HasPeaks() {
		sb.WriteString("  No peaks extracted\n\n")
		return
	}

	fmt.Fprintf(sb, "  %-3s %-6s %-12s %-12s %-12s %s\n", "#", "Index", "q", "Amplitude", "Sigma", "Status")
	for i, p := range r.Peaks {
		fmt.Fprintf(sb, "  %-3d %-6d %-12s %-12s %-12s %s\n",
			i+1, p.Index, formatFloat(p.Q), formatFloat(p.Amplitude), formatFloat(p.Sigma), title(p.Status.String()))
		if w.verbose && p.Status == model.PeakFitted {
			fmt.Fprintf(sb, "      +/- amplitude %s, sigma %s, window %d\n",
				formatFloat(p.AmplitudeErr), formatFloat(p.SigmaErr), p.Window)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by saxsflow\n")
	rule(sb, "=")
}

func rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, ruleWidth))
	sb.WriteString("\n")
}

func section(sb *strings.Builder, name string) {
	rule(sb, "-")
	sb.WriteString(name + "\n")
	rule(sb, "-")
	sb.WriteString("\n")
}
