package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/saxsflow/internal/model"
)

// MarkdownWriter outputs reports in GitHub flavored Markdown.
//
// Design decision: the nao1215/markdown builder gives tables, alerts and
// mermaid charts without hand-assembled strings.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one result in Markdown format.
func (w *MarkdownWriter) Write(result *model.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeResult(md, result, md.H1)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteBatch outputs an overview table followed by every result.
func (w *MarkdownWriter) WriteBatch(results []*model.Result) (int, error) {
	results = nonNil(results)
	md := markdown.NewMarkdown(w.output)

	md.H1("saxsflow Batch Report")
	md.PlainText("")

	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			"`" + r.Source + "`",
			strconv.Itoa(r.CountByStatus(model.PeakFitted)),
			strconv.Itoa(r.CountByStatus(model.PeakFitFailed)),
			statusText(r),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Fitted", "Failed", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range results {
		w.writeResult(md, r, md.H2)
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeResult(md *markdown.Markdown, r *model.Result, heading func(string) *markdown.Markdown) {
	heading("Analysis: " + r.Source)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Source", "`" + r.Source + "`"},
			{"Run ID", "`" + r.RunID + "`"},
			{"Analysed", r.DateAnalyzed.Format("2006-01-02 15:04:05 MST")},
			{"Points", strconv.Itoa(r.Points)},
			{"q range", formatFloat(r.QMin) + " – " + formatFloat(r.QMax)},
			{"Stages executed", strconv.Itoa(r.Stats.Executed)},
			{"Status", statusText(r)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, r)
	w.writeBackground(md, r)
	w.writePeaks(md, r)

	if len(r.Trace) > 0 {
		md.Details("Stage trace", strings.Join(r.Trace, " → "))
		md.PlainText("")
	}
}

// writeAlert writes an alert matching the run outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *model.Result) {
	failed := r.CountByStatus(model.PeakFitFailed)
	switch {
	case r.Failed():
		md.Cautionf("The analysis aborted: %s", r.Error)
	case r.Stats.Saturated:
		md.Warningf(
			"The scheduler saturated after %d approved stage requests; peaks may remain unextracted.",
			r.Stats.Approved,
		)
	case failed > 0:
		md.Importantf("%d peak fit(s) did not converge.", failed)
	case !r.HasPeaks():
		md.Note("No peaks were found.")
	default:
		md.Tip("All selected peaks were fitted.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeBackground(md *markdown.Markdown, r *model.Result) {
	if r.Background == nil {
		return
	}
	md.H3("Background")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Model", "a", "b", "Subtracted"},
		Rows: [][]string{{
			title(r.Background.Model),
			formatFloat(r.Background.A),
			formatFloat(r.Background.B),
			formatFloat(r.Background.Coef),
		}},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePeaks(md *markdown.Markdown, r *model.Result) {
	md.H3("Peaks")
	md.PlainText("")

	if !r.HasPeaks() {
		md.PlainText("No peaks extracted.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(r.Peaks))
	for i, p := range r.Peaks {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(p.Index),
			formatFloat(p.Q),
			formatFloat(p.Height),
			formatWithError(p.Amplitude, p.AmplitudeErr),
			formatWithError(p.Sigma, p.SigmaErr),
			strconv.Itoa(p.Window),
			title(p.Status.String()),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Index", "q", "Height", "Amplitude", "Sigma", "Window", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, r)
}

// writePieChart writes a mermaid pie chart of peak outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, r *model.Result) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Peak Fit Outcomes"),
		piechart.WithShowData(true),
	)

	for _, status := range []model.PeakStatus{model.PeakFitted, model.PeakFitFailed} {
		if n := r.CountByStatus(status); n > 0 {
			chart.LabelAndIntValue(title(status.String()), uint64(n)) //nolint:gosec // counts are non-negative
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [saxsflow](https://github.com/nao1215/saxsflow)*")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 5, 64)
}

func formatWithError(v, err float64) string {
	if err == 0 {
		return formatFloat(v)
	}
	return formatFloat(v) + " ± " + formatFloat(err)
}
