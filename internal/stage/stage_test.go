package stage

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
	"github.com/nao1215/saxsflow/internal/signal"
)

func mustSample(t *testing.T, q, intensity, errs []float64) *model.Sample {
	t.Helper()

	s, err := model.NewSample(q, intensity, errs)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func indexQ(n int, step float64) []float64 {
	q := make([]float64, n)
	for i := range q {
		q[i] = step * float64(i+1)
	}
	return q
}

// TestDecodeConfig tests keyword argument decoding.
func TestDecodeConfig(t *testing.T) {
	t.Parallel()

	t.Run("overlays defaults", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultBackgroundConfig()
		if err := DecodeConfig(map[string]any{"coef": 0.5, "p0": []any{1, 2}}, &cfg); err != nil {
			t.Fatal(err)
		}
		want := BackgroundConfig{Model: ModelHyperbola, Coef: 0.5, P0: []float64{1, 2}}
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty kwargs keep defaults", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultCutConfig()
		if err := DecodeConfig(nil, &cfg); err != nil {
			t.Fatal(err)
		}
		if cfg.CutPoint != 100 {
			t.Errorf("CutPoint = %d", cfg.CutPoint)
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultFindPeakConfig()
		err := DecodeConfig(map[string]any{"hieght": 1}, &cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("rejects wrong types", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultFilterConfig()
		err := DecodeConfig(map[string]any{"window": "wide"}, &cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

// TestConstructorsValidate tests that constructors reject bad configs.
func TestConstructorsValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  func() error
	}{
		{"negative cut", func() error { _, err := NewCut(CutConfig{CutPoint: -1}); return err }},
		{"zero window", func() error { _, err := NewFilter(FilterConfig{Window: 0}); return err }},
		{"unknown model", func() error {
			_, err := NewBackground(BackgroundConfig{Model: "linear", Coef: 1, P0: []float64{1, 1}})
			return err
		}},
		{"short p0", func() error {
			_, err := NewBackground(BackgroundConfig{Model: ModelHyperbola, Coef: 1, P0: []float64{1}})
			return err
		}},
		{"negative height", func() error { _, err := NewFindPeak(FindPeakConfig{Height: -1}); return err }},
		{"zero fit range", func() error { _, err := NewProcessPeak(ProcessPeakConfig{FitRange: 0}); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := tc.err(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

// TestCut tests trimming.
func TestCut(t *testing.T) {
	t.Parallel()

	s := mustSample(t, []float64{1, 2, 3, 4, 5}, []float64{5, 4, 3, 2, 1}, nil)

	t.Run("keeps points from cut point", func(t *testing.T) {
		t.Parallel()

		c, err := NewCut(CutConfig{CutPoint: 2})
		if err != nil {
			t.Fatal(err)
		}
		out, _, err := c.Process(context.Background(), s, model.NewFlowMetadata())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]float64{3, 4, 5}, out.Q()); diff != "" {
			t.Errorf("q mismatch (-want +got):\n%s", diff)
		}
		if s.Len() != 5 {
			t.Error("input sample modified")
		}
	})

	t.Run("cut beyond length fails", func(t *testing.T) {
		t.Parallel()

		c, err := NewCut(CutConfig{CutPoint: 5})
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := c.Process(context.Background(), s, model.NewFlowMetadata()); !errors.Is(err, ErrCutOutOfRange) {
			t.Errorf("expected ErrCutOutOfRange, got %v", err)
		}
	})
}

// TestFilter tests smoothing.
func TestFilter(t *testing.T) {
	t.Parallel()

	s := mustSample(t, []float64{1, 2, 3, 4}, []float64{3, 3, 3, 3}, nil)

	f, err := NewFilter(FilterConfig{Window: 3})
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := f.Process(context.Background(), s, model.NewFlowMetadata())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{2, 3, 3, 2}, out.Intensity(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("intensity mismatch (-want +got):\n%s", diff)
	}

	wide, err := NewFilter(FilterConfig{Window: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := wide.Process(context.Background(), s, model.NewFlowMetadata()); !errors.Is(err, signal.ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

// TestBackground tests background fitting and subtraction.
func TestBackground(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		model string
		curve func(q float64) float64
		a, b  float64
	}{
		{"hyperbola", ModelHyperbola, func(q float64) float64 { return 2 * math.Pow(q, -3) }, 3, 2},
		{"exponent", ModelExponent, func(q float64) float64 { return 5 * math.Exp(-2*q) }, -2, 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q := indexQ(20, 0.05)
			intensity := make([]float64, len(q))
			for i := range q {
				intensity[i] = tc.curve(q[i])
			}

			cfg := DefaultBackgroundConfig()
			cfg.Model = tc.model
			bg, err := NewBackground(cfg)
			if err != nil {
				t.Fatal(err)
			}

			out, _, err := bg.Process(context.Background(), mustSample(t, q, intensity, nil), model.NewFlowMetadata())
			if err != nil {
				t.Fatal(err)
			}

			fit, ok := out.BackgroundFit()
			if !ok {
				t.Fatal("background fit not recorded")
			}
			if math.Abs(fit.A-tc.a) > 1e-6 || math.Abs(fit.B-tc.b) > 1e-6 {
				t.Errorf("fit = %+v, want a=%v b=%v", fit, tc.a, tc.b)
			}
			for i, v := range out.Intensity() {
				if math.Abs(v-0.3*intensity[i]) > 1e-6*intensity[i] {
					t.Errorf("intensity[%d] = %v, want %v", i, v, 0.3*intensity[i])
				}
			}
		})
	}

	t.Run("hyperbola rejects non-positive q", func(t *testing.T) {
		t.Parallel()

		bg, err := NewBackground(DefaultBackgroundConfig())
		if err != nil {
			t.Fatal(err)
		}
		s := mustSample(t, []float64{0, 0.1, 0.2}, []float64{1, 1, 1}, nil)
		if _, _, err := bg.Process(context.Background(), s, model.NewFlowMetadata()); !errors.Is(err, ErrNonPositiveQ) {
			t.Errorf("expected ErrNonPositiveQ, got %v", err)
		}
	})

	t.Run("non-positive intensity uses p0", func(t *testing.T) {
		t.Parallel()

		bg, err := NewBackground(DefaultBackgroundConfig())
		if err != nil {
			t.Fatal(err)
		}
		got := bg.seed([]float64{0.1, 0.2, 0.3}, []float64{1, -1, 1})
		if diff := cmp.Diff([]float64{3, 2}, got); diff != "" {
			t.Errorf("seed mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestFindPeak tests candidate search and selection.
func TestFindPeak(t *testing.T) {
	t.Parallel()

	intensity := []float64{0, 1, 5, 1, 0, 1, 6, 1, 0}
	s := mustSample(t, indexQ(len(intensity), 1), intensity, nil)
	cfg := FindPeakConfig{Height: 2, Prominence: 1, Distance: 2}

	t.Run("reports candidates and selects the largest", func(t *testing.T) {
		t.Parallel()

		next := func() (pipeline.Stage, error) { return NewProcessPeak(DefaultProcessPeakConfig()) }
		policy := pipeline.NewChainingPolicy("peaks", pipeline.KeyPresentCondition{Key: model.KeyCurrent}, next)
		fp, err := NewFindPeak(cfg, WithPolicy(policy))
		if err != nil {
			t.Fatal(err)
		}

		_, flow, err := fp.Process(context.Background(), s, model.NewFlowMetadata())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(map[int]float64{2: 5, 6: 6}, flow.Unprocessed); diff != "" {
			t.Errorf("candidates mismatch (-want +got):\n%s", diff)
		}

		reqs, err := fp.RequestStage(flow)
		if err != nil {
			t.Fatal(err)
		}
		if len(reqs) != 1 {
			t.Fatalf("expected one request, got %d", len(reqs))
		}
		if reqs[0].Flow.Current != 6 {
			t.Errorf("selected %v, want 6", reqs[0].Flow.Current)
		}
		if reqs[0].Stage.Name() != NameProcessPeak {
			t.Errorf("requested %q", reqs[0].Stage.Name())
		}
	})

	t.Run("skips processed indices", func(t *testing.T) {
		t.Parallel()

		fp, err := NewFindPeak(cfg)
		if err != nil {
			t.Fatal(err)
		}
		_, flow, err := fp.Process(context.Background(), s, model.NewFlowMetadata().WithProcessed(6))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(map[int]float64{2: 5}, flow.Unprocessed); diff != "" {
			t.Errorf("candidates mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no candidates means no request", func(t *testing.T) {
		t.Parallel()

		next := func() (pipeline.Stage, error) { return NewProcessPeak(DefaultProcessPeakConfig()) }
		policy := pipeline.NewChainingPolicy("peaks", pipeline.KeyPresentCondition{Key: model.KeyCurrent}, next)
		fp, err := NewFindPeak(cfg, WithPolicy(policy))
		if err != nil {
			t.Fatal(err)
		}

		flat := mustSample(t, indexQ(5, 1), []float64{0, 0, 0, 0, 0}, nil)
		_, flow, err := fp.Process(context.Background(), flat, model.NewFlowMetadata())
		if err != nil {
			t.Fatal(err)
		}
		reqs, err := fp.RequestStage(flow)
		if err != nil || len(reqs) != 0 {
			t.Errorf("got %v, %v; want no requests", reqs, err)
		}
	})
}

// gaussianBump is a flat baseline with one Gaussian of amplitude 10 and
// sigma 0.03 at index 50, on q = 0.01·(i+1).
func gaussianBump(t *testing.T) *model.Sample {
	t.Helper()

	q := indexQ(100, 0.01)
	intensity := make([]float64, len(q))
	for i := range q {
		d := (q[i] - q[50]) / 0.03
		intensity[i] = 10 * math.Exp(-d*d)
	}
	return mustSample(t, q, intensity, nil)
}

// TestProcessPeakSubtractsIsolatedPeak tests one search and fit cycle on a
// single Gaussian bump.
func TestProcessPeakSubtractsIsolatedPeak(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := gaussianBump(t)

	fp, err := NewFindPeak(DefaultFindPeakConfig(), WithPolicy(pipeline.NewChainingPolicy(
		"peaks", pipeline.KeyPresentCondition{Key: model.KeyCurrent},
		func() (pipeline.Stage, error) { return NewProcessPeak(DefaultProcessPeakConfig()) },
	)))
	if err != nil {
		t.Fatal(err)
	}

	s, flow, err := fp.Process(ctx, s, model.NewFlowMetadata())
	if err != nil {
		t.Fatal(err)
	}
	reqs, err := fp.RequestStage(flow)
	if err != nil || len(reqs) != 1 {
		t.Fatalf("expected one request, got %v, %v", reqs, err)
	}
	if reqs[0].Flow.Current != 50 {
		t.Fatalf("selected %v, want 50", reqs[0].Flow.Current)
	}

	s, flow, err = reqs[0].Stage.Process(ctx, s, reqs[0].Flow)
	if err != nil {
		t.Fatal(err)
	}

	peaks := s.Peaks()
	if len(peaks) != 1 || peaks[0].Status != model.PeakFitted {
		t.Fatalf("peaks = %+v", peaks)
	}
	if peaks[0].Window != 3 {
		t.Errorf("window = %d, want 3", peaks[0].Window)
	}
	if math.Abs(peaks[0].Amplitude-10) > 1e-3 || math.Abs(peaks[0].Sigma-0.03) > 1e-5 {
		t.Errorf("peak = %+v", peaks[0])
	}
	for i, v := range s.Intensity() {
		if v >= 1e-2 || v < 0 {
			t.Errorf("residual[%d] = %v", i, v)
		}
	}
	if !flow.IsProcessed(50) || flow.Current != model.ProcessedPeak {
		t.Errorf("flow = %+v", flow)
	}

	_, flow, err = fp.Process(ctx, s, flow)
	if err != nil {
		t.Fatal(err)
	}
	if len(flow.Unprocessed) != 0 {
		t.Errorf("re-search found %v", flow.Unprocessed)
	}
}

// TestProcessPeakFitFailure tests the recoverable and fatal failure paths.
func TestProcessPeakFitFailure(t *testing.T) {
	t.Parallel()

	// A maximum below 0.25 leaves the amplitude bounds [1, 4·max] empty.
	intensity := []float64{0, 0.05, 0.1, 0.2, 0.1, 0.05, 0}
	s := mustSample(t, indexQ(len(intensity), 0.01), intensity, nil)
	flow := model.NewFlowMetadata().WithCurrent(3)

	t.Run("records failure and continues", func(t *testing.T) {
		t.Parallel()

		pp, err := NewProcessPeak(DefaultProcessPeakConfig())
		if err != nil {
			t.Fatal(err)
		}
		out, next, err := pp.Process(context.Background(), s, flow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(intensity, out.Intensity()); diff != "" {
			t.Errorf("intensity changed (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]int{3}, out.FailedPeaks()); diff != "" {
			t.Errorf("failed mismatch (-want +got):\n%s", diff)
		}
		if p := out.Peaks(); len(p) != 1 || p[0].Status != model.PeakFitFailed {
			t.Errorf("peaks = %+v", p)
		}
		if !next.IsProcessed(3) || next.Current != model.ProcessedPeak {
			t.Errorf("flow = %+v", next)
		}
	})

	t.Run("escalates at the failure limit", func(t *testing.T) {
		t.Parallel()

		pp, err := NewProcessPeak(ProcessPeakConfig{FitRange: 2, MaxFitFailures: 1})
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = pp.Process(context.Background(), s, flow)
		if !errors.Is(err, ErrTooManyFitFailures) {
			t.Errorf("expected ErrTooManyFitFailures, got %v", err)
		}
		var pe *PeakError
		if !errors.As(err, &pe) || pe.Index != 3 {
			t.Errorf("expected PeakError for index 3, got %v", err)
		}
	})

	t.Run("undefined index is a no-op", func(t *testing.T) {
		t.Parallel()

		pp, err := NewProcessPeak(DefaultProcessPeakConfig())
		if err != nil {
			t.Fatal(err)
		}
		out, next, err := pp.Process(context.Background(), s, model.NewFlowMetadata())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(intensity, out.Intensity()); diff != "" {
			t.Errorf("intensity changed (-want +got):\n%s", diff)
		}
		if len(next.Processed) != 0 {
			t.Errorf("processed = %v", next.Processed)
		}
	})
}
