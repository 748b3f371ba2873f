package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nao1215/saxsflow/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *RunDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newTestResult builds a result with one fitted and one failed peak.
func newTestResult(source string, at time.Time, peakQ float64) *model.Result {
	r := model.NewResult(source)
	r.Fingerprint = "fp-" + source
	r.DateAnalyzed = at
	r.Points = 100
	r.QMin, r.QMax = 0.01, 1.0
	r.Peaks = []model.Peak{
		{Index: 50, Q: peakQ, Height: 10, Amplitude: 10, Sigma: 0.03, Window: 3, Status: model.PeakFitted},
		{Index: 70, Q: 0.71, Height: 2, Status: model.PeakFitFailed},
	}
	r.FailedPeaks = []int{70}
	r.Background = &model.BackgroundFit{Model: "hyperbola", A: 3, B: 2, Coef: 0.7}
	r.Trace = []string{"find_peak", "process_peak", "find_peak", "process_peak", "find_peak"}
	r.Stats = model.RunStats{Executed: 5, Approved: 4}
	return r
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if err == nil || !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected database not found error, got %v", err)
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

// TestDefaultOptions tests the default options.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists || !opts.EnableWAL {
		t.Errorf("unexpected defaults %+v", opts)
	}
}

// TestSaveAndGetRun tests storing and loading complete results.
func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	want := newTestResult("a.dat", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), 0.51)
	if err := db.SaveResult(ctx, want); err != nil {
		t.Fatalf("failed to save result: %v", err)
	}

	got, err := db.GetRun(ctx, want.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		r, err := db.GetRun(ctx, "missing")
		if err != nil || r != nil {
			t.Errorf("expected nil, nil; got %v, %v", r, err)
		}
	})

	t.Run("duplicate run id", func(t *testing.T) {
		t.Parallel()

		if err := db.SaveResult(ctx, want); err == nil {
			t.Error("expected error for duplicate run id")
		}
	})

	t.Run("missing run id", func(t *testing.T) {
		t.Parallel()

		r := newTestResult("b.dat", time.Now(), 0.5)
		r.RunID = ""
		if err := db.SaveResult(ctx, r); err == nil {
			t.Error("expected error for empty run id")
		}
	})
}

// TestRunHistory tests history ordering and metadata.
func TestRunHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := newTestResult("lipid.dat", base, 0.50)
	newer := newTestResult("lipid.dat", base.Add(time.Hour), 0.52)
	other := newTestResult("other.dat", base, 0.30)
	other.Error = "stage \"background\": fit did not converge"
	for _, r := range []*model.Result{older, newer, other} {
		if err := db.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("latest run", func(t *testing.T) {
		t.Parallel()

		r, err := db.GetLatestRun(ctx, "lipid.dat")
		if err != nil {
			t.Fatal(err)
		}
		if r == nil || r.RunID != newer.RunID {
			t.Errorf("expected newest run %s, got %+v", newer.RunID, r)
		}

		none, err := db.GetLatestRun(ctx, "unknown.dat")
		if err != nil || none != nil {
			t.Errorf("expected nil, nil; got %v, %v", none, err)
		}
	})

	t.Run("history newest first", func(t *testing.T) {
		t.Parallel()

		history, err := db.GetRunHistory(ctx, "lipid.dat")
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 2 || history[0].RunID != newer.RunID || history[1].RunID != older.RunID {
			t.Errorf("unexpected history order")
		}
	})

	t.Run("sources", func(t *testing.T) {
		t.Parallel()

		sources, err := db.ListSources(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"lipid.dat", "other.dat"}, sources); diff != "" {
			t.Errorf("sources mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("metadata", func(t *testing.T) {
		t.Parallel()

		meta, err := db.GetRunHistoryWithMetadata(ctx, "other.dat")
		if err != nil {
			t.Fatal(err)
		}
		want := []RunMetadata{{
			RunID:       other.RunID,
			Source:      "other.dat",
			Fingerprint: "fp-other.dat",
			Timestamp:   base,
			Points:      100,
			FittedCount: 1,
			FailedCount: 1,
			Error:       other.Error,
		}}
		if diff := cmp.Diff(want, meta); diff != "" {
			t.Errorf("metadata mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("fingerprint lookup", func(t *testing.T) {
		t.Parallel()

		meta, err := db.FindByFingerprint(ctx, "fp-lipid.dat")
		if err != nil {
			t.Fatal(err)
		}
		if len(meta) != 2 {
			t.Errorf("expected 2 runs, got %d", len(meta))
		}
	})

	t.Run("peaks in q range", func(t *testing.T) {
		t.Parallel()

		peaks, err := db.QueryPeaks(ctx, 0.45, 0.75)
		if err != nil {
			t.Fatal(err)
		}
		want := []PeakRecord{
			{RunID: older.RunID, Source: "lipid.dat", Index: 50, Q: 0.50, Amplitude: 10, Sigma: 0.03, Status: model.PeakFitted},
			{RunID: newer.RunID, Source: "lipid.dat", Index: 50, Q: 0.52, Amplitude: 10, Sigma: 0.03, Status: model.PeakFitted},
		}
		if diff := cmp.Diff(want, peaks, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("peaks mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestParseTimestamp tests the accepted timestamp formats.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, s := range []string{"2025-01-02T03:04:05Z", "2025-01-02 03:04:05", "2025-01-02T03:04:05"} {
		if got := parseTimestamp(s); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v", s, got)
		}
	}
	if got := parseTimestamp("yesterday"); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
}
