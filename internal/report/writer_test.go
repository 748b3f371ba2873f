package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/saxsflow/internal/model"
)

// createTestResult creates a result with one fitted and one failed peak.
func createTestResult() *model.Result {
	r := model.NewResult("data/lipid_a.dat")
	r.RunID = "run-1"
	r.DateAnalyzed = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	r.Points = 100
	r.QMin, r.QMax = 0.01, 1
	r.Peaks = []model.Peak{
		{Index: 50, Q: 0.51, Height: 10, Amplitude: 10, Sigma: 0.03, AmplitudeErr: 0.1, SigmaErr: 0.001, Window: 3, Status: model.PeakFitted},
		{Index: 20, Q: 0.21, Height: 1.2, Status: model.PeakFitFailed},
	}
	r.FailedPeaks = []int{20}
	r.Background = &model.BackgroundFit{Model: "hyperbola", A: 3, B: 2, Coef: 0.7}
	r.Trace = []string{"cut", "filter", "background", "find_peak", "process_peak", "find_peak"}
	r.Stats = model.RunStats{Executed: 6, Approved: 2}
	return r
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and peaks", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestResult())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{"SAXSFLOW REPORT", "data/lipid_a.dat", "run-1", "BACKGROUND", "Hyperbola", "PEAKS", "Fit Failed", "Complete"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "STAGE TRACE") {
			t.Error("trace is only shown in verbose mode")
		}
	})

	t.Run("verbose shows trace and uncertainties", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestResult()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "cut -> filter -> background") {
			t.Error("expected stage trace")
		}
		if !strings.Contains(output, "window 3") {
			t.Error("expected fit details")
		}
	})

	t.Run("empty peak section", func(t *testing.T) {
		t.Parallel()

		r := model.NewResult("empty.dat")
		var hidden, shown bytes.Buffer
		if _, err := NewSimpleWriter(&hidden).Write(r); err != nil {
			t.Fatal(err)
		}
		if _, err := NewSimpleWriter(&shown, WithShowEmpty(true)).Write(r); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(hidden.String(), "PEAKS") {
			t.Error("expected no peak section")
		}
		if !strings.Contains(shown.String(), "No peaks extracted") {
			t.Error("expected empty peak section")
		}
	})

	t.Run("failed and saturated runs", func(t *testing.T) {
		t.Parallel()

		failed := createTestResult()
		failed.Error = "background fit: did not converge"
		saturated := createTestResult()
		saturated.Stats.Saturated = true

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteBatch([]*model.Result{failed, nil, saturated}); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{"BATCH SUMMARY", "2 (1 failed, 1 saturated)", "Error - background fit", "Saturated"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})
}

// TestJSONWriter tests the JSON writers.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("round trips a result", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		want := createTestResult()
		if _, err := NewJSONWriter(&buf).Write(want); err != nil {
			t.Fatal(err)
		}

		var got model.Result
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if diff := cmp.Diff(want, &got); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
		if !strings.Contains(buf.String(), `"status":"fit_failed"`) {
			t.Error("expected textual peak status")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).WriteBatch([]*model.Result{createTestResult(), nil}); err != nil {
			t.Fatal(err)
		}
		var got []*model.Result
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 1 || !strings.Contains(buf.String(), "\n  {") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("full report wraps results", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewFullJSONWriter(&buf, "v1.2.3").Write(createTestResult()); err != nil {
			t.Fatal(err)
		}
		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Version != "v1.2.3" || len(got.Results) != 1 {
			t.Errorf("unexpected report %+v", got)
		}
		want := BatchSummary{Files: 1, FittedPeaks: 1, FailedPeaks: 1}
		if diff := cmp.Diff(want, got.Summary); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestMarkdownWriter tests the Markdown writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and pie chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestResult()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{"# Analysis: data/lipid_a.dat", "### Peaks", "Fit Failed", "10 ± 0.1", "mermaid", "pie", "Peak Fit Outcomes", "[!IMPORTANT]"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	testCases := []struct {
		name   string
		mutate func(*model.Result)
		alert  string
	}{
		{"aborted run", func(r *model.Result) { r.Error = "boom" }, "[!CAUTION]"},
		{"saturated run", func(r *model.Result) { r.Stats.Saturated = true }, "[!WARNING]"},
		{"no peaks", func(r *model.Result) { r.Peaks = nil }, "[!NOTE]"},
		{"all fitted", func(r *model.Result) { r.Peaks = r.Peaks[:1] }, "[!TIP]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := createTestResult()
			tc.mutate(r)
			var buf bytes.Buffer
			if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tc.alert) {
				t.Errorf("expected %s alert", tc.alert)
			}
		})
	}

	t.Run("batch overview", func(t *testing.T) {
		t.Parallel()

		other := createTestResult()
		other.Source = "data/lipid_b.dat"

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteBatch([]*model.Result{createTestResult(), other}); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{"# saxsflow Batch Report", "## Analysis: data/lipid_a.dat", "## Analysis: data/lipid_b.dat"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})
}

// errWriter fails every write.
type errWriter struct{}

func (errWriter) Write(*model.Result) (int, error)        { return 0, errors.New("write failed") }
func (errWriter) WriteBatch([]*model.Result) (int, error) { return 0, errors.New("write failed") }

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to every writer", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))
		n, err := m.Write(createTestResult())
		if err != nil {
			t.Fatal(err)
		}
		if n != text.Len()+js.Len() || text.Len() == 0 || js.Len() == 0 {
			t.Errorf("wrote %d bytes, buffers hold %d and %d", n, text.Len(), js.Len())
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		m := NewMultiWriter(errWriter{}, NewSimpleWriter(&after))
		if _, err := m.WriteBatch([]*model.Result{createTestResult()}); err == nil {
			t.Error("expected error")
		}
		if after.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

// TestPlotWriter tests PNG rendering.
func TestPlotWriter(t *testing.T) {
	t.Parallel()

	q := make([]float64, 100)
	intensity := make([]float64, len(q))
	for i := range q {
		q[i] = 0.01 * float64(i+1)
		d := (q[i] - 0.51) / 0.03
		intensity[i] = 0.7*2*math.Pow(q[i], -3) + 10*math.Exp(-d*d)
	}
	s, err := model.NewSample(q, intensity, nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("writes png", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewPlotWriter(WithPlotSize(4*72, 3*72)).WriteTo(&buf, s, createTestResult()); err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
			t.Error("expected PNG output")
		}
	})

	t.Run("saves file without fitted peaks", func(t *testing.T) {
		t.Parallel()

		r := createTestResult()
		r.Peaks = nil
		r.Background = nil
		path := filepath.Join(t.TempDir(), "plots", "curve.png")
		if err := NewPlotWriter().Save(path, s, r); err != nil {
			t.Fatal(err)
		}
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("expected plot file, got %v", err)
		}
	})
}

// TestTitle tests identifier formatting.
func TestTitle(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"fit_failed":   "Fit Failed",
		"process_peak": "Process Peak",
		"hyperbola":    "Hyperbola",
	} {
		if got := title(in); got != want {
			t.Errorf("title(%q) = %q, want %q", in, got, want)
		}
	}
}
