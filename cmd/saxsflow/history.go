package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/saxsflow/internal/config"
	"github.com/nao1215/saxsflow/internal/database"
	"github.com/nao1215/saxsflow/internal/model"
	"github.com/spf13/cobra"
)

// Constants for peak-count direction and summary messages.
const (
	peakDirectionGained    = "gained"
	peakDirectionLost      = "lost"
	peakDirectionUnchanged = "unchanged"
	noPeaksMessage         = "No peaks"

	// defaultTolerance is the largest q distance at which two peaks of
	// different runs are taken to be the same reflection.
	defaultTolerance = 0.005
)

// historyOptions selects what the history command shows.
type historyOptions struct {
	withRunID string
	since     string
	tolerance float64
	json      bool
	markdown  bool
}

// NewHistoryCmd creates the history command.
// This command compares analysis results with earlier runs stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [curve-file]",
		Short: "Compare analysis results with earlier runs",
		Long: `History displays differences between the latest and an earlier analysis of a curve.

Every 'saxsflow analyze' run is stored in the database. This command shows:
- Peaks that appeared since the earlier run
- Peaks that vanished since the earlier run
- Matched peaks with their shift in q and change in amplitude

Two peaks are matched when their positions differ by at most --tolerance.

Examples:
  # Compare the latest two runs of a curve
  saxsflow history lipid_a.dat

  # List all runs of a curve
  saxsflow history --list lipid_a.dat

  # Compare with a specific earlier run
  saxsflow history --with-run-id 3f2a... lipid_a.dat

  # Compare with the first run since a date
  saxsflow history --since "2025-01-01" lipid_a.dat

  # Output comparison in JSON format
  saxsflow history --json lipid_a.dat

  # List all analysed curves
  saxsflow history --list-sources

  # Find fitted peaks between q = 0.10 and q = 0.12 across all runs
  saxsflow history --peaks 0.10:0.12`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	// Listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List run history for the specified curve")
	cmd.Flags().BoolP("list-sources", "L", false,
		"List all analysed curves in the database")
	cmd.Flags().StringP("peaks", "q", "",
		"List fitted peaks of all runs within a q range (format: MIN:MAX)")

	// Comparison target flags
	cmd.Flags().StringP("with-run-id", "i", "",
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run after this date (format: YYYY-MM-DD)")
	cmd.Flags().Float64P("tolerance", "T", defaultTolerance,
		"Largest q difference at which peaks of two runs are matched")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	listSources, err := cmd.Flags().GetBool("list-sources")
	if err != nil {
		return err
	}
	peakRange, err := cmd.Flags().GetString("peaks")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var qMin, qMax float64
	if peakRange != "" {
		qMin, qMax, err = parseQRange(peakRange)
		if err != nil {
			return err
		}
	}
	var source string
	if !listSources && peakRange == "" {
		if len(args) == 0 {
			return errors.New("curve file is required (use --list-sources to see analysed curves)")
		}
		source = args[0]
	}

	opts := historyOptions{}
	if opts.withRunID, err = cmd.Flags().GetString("with-run-id"); err != nil {
		return err
	}
	if opts.since, err = cmd.Flags().GetString("since"); err != nil {
		return err
	}
	if opts.tolerance, err = cmd.Flags().GetFloat64("tolerance"); err != nil {
		return err
	}
	if opts.tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", opts.tolerance)
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if listSources {
		return listAnalysedSources(ctx, out, db)
	}
	if peakRange != "" {
		return listPeaksInRange(ctx, out, db, qMin, qMax)
	}

	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listRunHistory(ctx, out, db, source)
	}

	return runComparison(ctx, out, db, source, opts)
}

// parseQRange parses "MIN:MAX".
func parseQRange(s string) (float64, float64, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid q range %q (format: MIN:MAX)", s)
	}
	qMin, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid q range minimum: %w", err)
	}
	qMax, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid q range maximum: %w", err)
	}
	if qMin > qMax {
		return 0, 0, fmt.Errorf("invalid q range %q: minimum exceeds maximum", s)
	}
	return qMin, qMax, nil
}

// listAnalysedSources lists all curves that have runs in the database.
func listAnalysedSources(ctx context.Context, w io.Writer, db *database.RunDB) error {
	sources, err := db.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Fprintln(w, "No analysed curves found in the database.")
		fmt.Fprintln(w, "\nUse 'saxsflow analyze <curve-file>' to analyse a curve.")
		return nil
	}

	fmt.Fprintf(w, "Analysed curves (%d):\n\n", len(sources))
	for _, source := range sources {
		fmt.Fprintf(w, "  • %s\n", source)
	}
	fmt.Fprintln(w, "\nUse 'saxsflow history --list <curve-file>' to see the runs of a curve.")

	return nil
}

// listRunHistory lists all runs of one curve.
func listRunHistory(ctx context.Context, w io.Writer, db *database.RunDB, source string) error {
	runs, err := db.GetRunHistoryWithMetadata(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(w, "No run history found for %s\n", source)
		fmt.Fprintln(w, "\nUse 'saxsflow analyze' to analyse this curve.")
		return nil
	}

	fmt.Fprintf(w, "Run history for %s (%d runs):\n\n", source, len(runs))
	fmt.Fprintf(w, "  %-36s  %-20s  %s\n", "Run ID", "Date", "Outcome")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 80))

	for _, meta := range runs {
		fmt.Fprintf(w, "  %-36s  %-20s  %s\n",
			meta.RunID,
			meta.Timestamp.Local().Format("2006-01-02 15:04:05"),
			formatOutcome(meta),
		)
	}

	fmt.Fprintln(w, "\nUse 'saxsflow history <curve-file>' to compare the latest two runs.")
	fmt.Fprintln(w, "Use 'saxsflow history --with-run-id <id> <curve-file>' to compare with a specific run.")

	return nil
}

// formatOutcome formats the outcome of a stored run.
func formatOutcome(meta database.RunMetadata) string {
	if meta.Error != "" {
		return "Error: " + meta.Error
	}

	var parts []string
	if meta.FittedCount > 0 {
		parts = append(parts, fmt.Sprintf("fitted:%d", meta.FittedCount))
	}
	if meta.FailedCount > 0 {
		parts = append(parts, fmt.Sprintf("failed:%d", meta.FailedCount))
	}
	if meta.Saturated {
		parts = append(parts, "saturated")
	}

	if len(parts) == 0 {
		return noPeaksMessage
	}
	return strings.Join(parts, " ")
}

// listPeaksInRange lists the fitted peaks of every run within [qMin, qMax].
func listPeaksInRange(ctx context.Context, w io.Writer, db *database.RunDB, qMin, qMax float64) error {
	records, err := db.QueryPeaks(ctx, qMin, qMax)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintf(w, "No fitted peaks found between q = %g and q = %g\n", qMin, qMax)
		return nil
	}

	fmt.Fprintf(w, "Fitted peaks between q = %g and q = %g (%d):\n\n", qMin, qMax, len(records))
	fmt.Fprintf(w, "  %-12s  %-12s  %-12s  %s\n", "q", "Amplitude", "Sigma", "Source")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 60))
	for _, rec := range records {
		fmt.Fprintf(w, "  %-12.5g  %-12.5g  %-12.5g  %s\n", rec.Q, rec.Amplitude, rec.Sigma, rec.Source)
	}
	return nil
}

// runComparison performs the actual comparison between two runs.
func runComparison(ctx context.Context, w io.Writer, db *database.RunDB, source string, opts historyOptions) error {
	results, err := db.GetRunHistory(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(results) == 0 {
		return fmt.Errorf("no run history found for %s", source)
	}

	if len(results) < 2 && opts.withRunID == "" && opts.since == "" {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(results))
	}

	// Latest run is always the current one
	current := results[0]
	var previous *model.Result

	switch {
	case opts.withRunID != "":
		previous, err = db.GetRun(ctx, opts.withRunID)
		if err != nil {
			return fmt.Errorf("failed to get run %s: %w", opts.withRunID, err)
		}
		if previous == nil {
			return fmt.Errorf("run %s not found", opts.withRunID)
		}
		if previous.Source != source {
			return fmt.Errorf("run %s belongs to %s, not %s", opts.withRunID, previous.Source, source)
		}
	case opts.since != "":
		sinceDate, err := time.Parse("2006-01-02", opts.since)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Results are newest first, so walk backwards to find the oldest
		// run at or after the date.
		for i := len(results) - 1; i >= 0; i-- {
			if !results[i].DateAnalyzed.Before(sinceDate) {
				previous = results[i]
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("no runs found since %s", opts.since)
		}
		if previous == current {
			return fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", opts.since)
		}
	default:
		previous = results[1]
	}

	comparison := compareRuns(previous, current, opts.tolerance)

	if opts.json {
		return outputComparisonJSON(w, comparison)
	}
	if opts.markdown {
		return outputComparisonMarkdown(w, comparison)
	}
	return outputComparisonText(w, comparison)
}

// ComparisonResult holds the result of comparing two runs of one curve.
type ComparisonResult struct {
	// Source is the analysed curve.
	Source string `json:"source"`

	// PreviousRun contains metadata about the earlier run.
	PreviousRun RunSummary `json:"previous_run"`

	// CurrentRun contains metadata about the latest run.
	CurrentRun RunSummary `json:"current_run"`

	// NewPeaks are fitted peaks of the current run without a partner.
	NewPeaks []model.Peak `json:"new_peaks,omitempty"`

	// VanishedPeaks are fitted peaks of the previous run without a partner.
	VanishedPeaks []model.Peak `json:"vanished_peaks,omitempty"`

	// Matched pairs peaks present in both runs.
	Matched []PeakMatch `json:"matched,omitempty"`

	// Direction is "gained", "lost", or "unchanged".
	Direction string `json:"direction"`
}

// RunSummary contains metadata about a run for comparison display.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	DateAnalyzed time.Time `json:"date_analyzed"`
	FittedPeaks  int       `json:"fitted_peaks"`
	FailedPeaks  int       `json:"failed_peaks"`
	Saturated    bool      `json:"saturated"`
	Error        string    `json:"error,omitempty"`
}

// PeakMatch pairs one peak of each run.
type PeakMatch struct {
	Previous model.Peak `json:"previous"`
	Current  model.Peak `json:"current"`

	// DeltaQ and DeltaAmplitude are current minus previous.
	DeltaQ         float64 `json:"delta_q"`
	DeltaAmplitude float64 `json:"delta_amplitude"`
}

func summarizeRun(r *model.Result) RunSummary {
	return RunSummary{
		RunID:        r.RunID,
		DateAnalyzed: r.DateAnalyzed,
		FittedPeaks:  r.CountByStatus(model.PeakFitted),
		FailedPeaks:  r.CountByStatus(model.PeakFitFailed),
		Saturated:    r.Stats.Saturated,
		Error:        r.Error,
	}
}

// compareRuns matches the fitted peaks of two runs by position.
//
// Pairs are formed closest first, so each peak belongs to at most one
// match and a pair never exceeds tolerance.
func compareRuns(previous, current *model.Result, tolerance float64) *ComparisonResult {
	result := &ComparisonResult{
		Source:      current.Source,
		PreviousRun: summarizeRun(previous),
		CurrentRun:  summarizeRun(current),
	}

	prev := previous.FittedPeaks()
	curr := current.FittedPeaks()

	type candidate struct {
		i, j int
		d    float64
	}
	var candidates []candidate
	for i, p := range prev {
		for j, c := range curr {
			if d := math.Abs(c.Q - p.Q); d <= tolerance {
				candidates = append(candidates, candidate{i, j, d})
			}
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.d, b.d)
	})

	usedPrev := make([]bool, len(prev))
	usedCurr := make([]bool, len(curr))
	for _, c := range candidates {
		if usedPrev[c.i] || usedCurr[c.j] {
			continue
		}
		usedPrev[c.i], usedCurr[c.j] = true, true
		result.Matched = append(result.Matched, PeakMatch{
			Previous:       prev[c.i],
			Current:        curr[c.j],
			DeltaQ:         curr[c.j].Q - prev[c.i].Q,
			DeltaAmplitude: curr[c.j].Amplitude - prev[c.i].Amplitude,
		})
	}

	for j, c := range curr {
		if !usedCurr[j] {
			result.NewPeaks = append(result.NewPeaks, c)
		}
	}
	for i, p := range prev {
		if !usedPrev[i] {
			result.VanishedPeaks = append(result.VanishedPeaks, p)
		}
	}

	byQ := func(a, b model.Peak) int { return cmp.Compare(a.Q, b.Q) }
	slices.SortFunc(result.NewPeaks, byQ)
	slices.SortFunc(result.VanishedPeaks, byQ)
	slices.SortFunc(result.Matched, func(a, b PeakMatch) int { return byQ(a.Current, b.Current) })

	switch {
	case len(curr) > len(prev):
		result.Direction = peakDirectionGained
	case len(curr) < len(prev):
		result.Direction = peakDirectionLost
	default:
		result.Direction = peakDirectionUnchanged
	}

	return result
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(w io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(w io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(w)

	md.H1("Run Comparison: " + result.Source)
	md.PlainText("")
	md.H2("Summary")
	md.PlainText("")
	md.PlainTextf("**Peak count:** %s", formatPeakDirection(result.Direction))
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{
				"Date",
				result.PreviousRun.DateAnalyzed.Format("2006-01-02 15:04"),
				result.CurrentRun.DateAnalyzed.Format("2006-01-02 15:04"),
				"-",
			},
			{
				"Fitted",
				strconv.Itoa(result.PreviousRun.FittedPeaks),
				strconv.Itoa(result.CurrentRun.FittedPeaks),
				formatDelta(result.CurrentRun.FittedPeaks - result.PreviousRun.FittedPeaks),
			},
			{
				"Fit failed",
				strconv.Itoa(result.PreviousRun.FailedPeaks),
				strconv.Itoa(result.CurrentRun.FailedPeaks),
				formatDelta(result.CurrentRun.FailedPeaks - result.PreviousRun.FailedPeaks),
			},
		},
	})
	md.PlainText("")

	if len(result.NewPeaks) > 0 {
		md.H2(fmt.Sprintf("New Peaks (%d)", len(result.NewPeaks)))
		md.PlainText("")
		md.BulletList(peakLines(result.NewPeaks)...)
		md.PlainText("")
	}

	if len(result.VanishedPeaks) > 0 {
		md.H2(fmt.Sprintf("Vanished Peaks (%d)", len(result.VanishedPeaks)))
		md.PlainText("")
		lines := peakLines(result.VanishedPeaks)
		for i, l := range lines {
			lines[i] = "~~" + l + "~~"
		}
		md.BulletList(lines...)
		md.PlainText("")
	}

	if len(result.Matched) > 0 {
		md.H2(fmt.Sprintf("Matched Peaks (%d)", len(result.Matched)))
		md.PlainText("")
		rows := make([][]string, len(result.Matched))
		for i, m := range result.Matched {
			rows[i] = []string{
				formatQ(m.Current.Q),
				formatSigned(m.DeltaQ),
				formatQ(m.Current.Amplitude),
				formatSigned(m.DeltaAmplitude),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"q", "Δq", "Amplitude", "ΔAmplitude"},
			Rows:   rows,
		})
	}

	return md.Build()
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(w io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(w, "Run Comparison: %s\n", result.Source)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nPeak count: %s\n", formatPeakDirection(result.Direction))

	fmt.Fprintf(w, "\nPrevious run: %s  %s\n", result.PreviousRun.DateAnalyzed.Format("2006-01-02 15:04:05"), result.PreviousRun.RunID)
	fmt.Fprintf(w, "Current run:  %s  %s\n", result.CurrentRun.DateAnalyzed.Format("2006-01-02 15:04:05"), result.CurrentRun.RunID)

	fmt.Fprintln(w, "\nPeaks Summary:")
	fmt.Fprintf(w, "  %-12s  %-10s  %-10s  %-10s\n", "Status", "Previous", "Current", "Change")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 47))
	fmt.Fprintf(w, "  %-12s  %-10d  %-10d  %-10s\n", "Fitted",
		result.PreviousRun.FittedPeaks, result.CurrentRun.FittedPeaks,
		formatDelta(result.CurrentRun.FittedPeaks-result.PreviousRun.FittedPeaks))
	fmt.Fprintf(w, "  %-12s  %-10d  %-10d  %-10s\n", "Fit failed",
		result.PreviousRun.FailedPeaks, result.CurrentRun.FailedPeaks,
		formatDelta(result.CurrentRun.FailedPeaks-result.PreviousRun.FailedPeaks))

	if len(result.NewPeaks) > 0 {
		fmt.Fprintf(w, "\nNew Peaks (%d):\n", len(result.NewPeaks))
		for _, l := range peakLines(result.NewPeaks) {
			fmt.Fprintf(w, "  [+] %s\n", l)
		}
	}

	if len(result.VanishedPeaks) > 0 {
		fmt.Fprintf(w, "\nVanished Peaks (%d):\n", len(result.VanishedPeaks))
		for _, l := range peakLines(result.VanishedPeaks) {
			fmt.Fprintf(w, "  [-] %s\n", l)
		}
	}

	if len(result.Matched) > 0 {
		fmt.Fprintf(w, "\nMatched Peaks (%d):\n", len(result.Matched))
		for _, m := range result.Matched {
			fmt.Fprintf(w, "  [=] q = %s (Δq %s, Δamplitude %s)\n",
				formatQ(m.Current.Q), formatSigned(m.DeltaQ), formatSigned(m.DeltaAmplitude))
		}
	}

	return nil
}

func peakLines(peaks []model.Peak) []string {
	lines := make([]string, len(peaks))
	for i, p := range peaks {
		lines[i] = fmt.Sprintf("q = %s, amplitude %s, sigma %s", formatQ(p.Q), formatQ(p.Amplitude), formatQ(p.Sigma))
	}
	return lines
}

// formatPeakDirection formats the peak-count direction for display.
func formatPeakDirection(direction string) string {
	switch direction {
	case peakDirectionGained:
		return "GAINED (more peaks fitted)"
	case peakDirectionLost:
		return "LOST (fewer peaks fitted)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

func formatQ(v float64) string {
	return strconv.FormatFloat(v, 'g', 5, 64)
}

func formatSigned(v float64) string {
	if v > 0 {
		return "+" + formatQ(v)
	}
	return formatQ(v)
}
