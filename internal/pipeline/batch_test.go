package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/saxsflow/internal/model"
)

func singleStage(stage *mockStage) PipelineFactory {
	return func(*model.Sample) (*Pipeline, error) {
		p := New()
		p.AddStage(stage)
		return p, nil
	}
}

func testSamples(t *testing.T, sources ...string) []*model.Sample {
	t.Helper()

	out := make([]*model.Sample, len(sources))
	for i, src := range sources {
		out[i] = newTestSample(t, src)
	}
	return out
}

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) { return New(), nil })

		if bp == nil {
			t.Fatal("expected non-nil processor")
		}
		if bp.concurrency != 10 {
			t.Errorf("expected default concurrency 10, got %d", bp.concurrency)
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) { return New(), nil }, WithConcurrency(5))

		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) { return New(), nil }, WithConcurrency(0))

		if bp.concurrency != 10 {
			t.Errorf("expected concurrency 10, got %d", bp.concurrency)
		}
	})

	t.Run("nil batch logger falls back to default", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) { return New(), nil }, WithBatchLogger(nil))

		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("processes all samples in order", func(t *testing.T) {
		t.Parallel()

		var processed atomic.Int32
		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) {
			p := New()
			p.AddStage(&mockStage{
				name: "counter",
				process: func(_ context.Context, s *model.Sample, f model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
					processed.Add(1)
					return s, f, nil
				},
			})
			return p, nil
		})

		sources := []string{"first.dat", "second.dat", "third.dat"}
		results, err := bp.ProcessBatch(context.Background(), testSamples(t, sources...))

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if processed.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processed.Load())
		}
		for i, result := range results {
			if result.Source != sources[i] {
				t.Errorf("result[%d]: got %q, expected %q", i, result.Source, sources[i])
			}
			if len(result.Trace) != 1 || result.Stats.Executed != 1 {
				t.Errorf("result[%d]: trace %v stats %+v", i, result.Trace, result.Stats)
			}
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var maxConcurrent atomic.Int32
		var currentConcurrent atomic.Int32
		var mu sync.Mutex

		bp := NewBatchProcessor(
			func(*model.Sample) (*Pipeline, error) {
				p := New()
				p.AddStage(&mockStage{
					name: "concurrent-counter",
					process: func(_ context.Context, s *model.Sample, f model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
						current := currentConcurrent.Add(1)

						mu.Lock()
						if current > maxConcurrent.Load() {
							maxConcurrent.Store(current)
						}
						mu.Unlock()

						time.Sleep(50 * time.Millisecond)

						currentConcurrent.Add(-1)
						return s, f, nil
					},
				})
				return p, nil
			},
			WithConcurrency(2),
		)

		samples := make([]*model.Sample, 8)
		for i := range samples {
			samples[i] = newTestSample(t, "s.dat")
		}

		if _, err := bp.ProcessBatch(context.Background(), samples); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if maxConcurrent.Load() > 2 {
			t.Errorf("max concurrent was %d, expected <= 2", maxConcurrent.Load())
		}
	})

	t.Run("continues after individual run failure", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) {
			p := New()
			p.AddStage(&mockStage{
				name: "sometimes-fails",
				process: func(_ context.Context, s *model.Sample, f model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
					if s.Source() == "fail.dat" {
						return nil, f, errors.New("simulated failure")
					}
					return s, f, nil
				},
			})
			return p, nil
		})

		results, err := bp.ProcessBatch(context.Background(), testSamples(t, "a.dat", "fail.dat", "c.dat"))

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !results[1].Failed() {
			t.Error("expected error in second result")
		}
		if results[0].Failed() || results[2].Failed() {
			t.Error("unexpected failure in other results")
		}
	})

	t.Run("records factory errors", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(*model.Sample) (*Pipeline, error) {
			return nil, errors.New("bad definition")
		})

		results, err := bp.ProcessBatch(context.Background(), testSamples(t, "a.dat"))
		if err != nil {
			t.Fatal(err)
		}
		if results[0].Error != "bad definition" {
			t.Errorf("Error = %q", results[0].Error)
		}
	})

	t.Run("times out single runs", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(
			func(s *model.Sample) (*Pipeline, error) {
				p := New()
				p.AddStage(&mockStage{
					name: "wait",
					process: func(ctx context.Context, in *model.Sample, f model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
						if s.Source() != "slow.dat" {
							return in, f, nil
						}
						<-ctx.Done()
						return nil, f, ctx.Err()
					},
				})
				return p, nil
			},
			WithTimeout(50*time.Millisecond),
		)

		results, err := bp.ProcessBatch(context.Background(), testSamples(t, "slow.dat", "fast.dat"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(results[0].Error, context.DeadlineExceeded.Error()) {
			t.Errorf("expected deadline error, got %q", results[0].Error)
		}
		if results[1].Failed() {
			t.Errorf("unexpected failure: %s", results[1].Error)
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		var started atomic.Int32

		bp := NewBatchProcessor(
			func(*model.Sample) (*Pipeline, error) {
				p := New()
				p.AddStage(&mockStage{
					name: "slow",
					process: func(ctx context.Context, s *model.Sample, f model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
						started.Add(1)
						select {
						case <-ctx.Done():
							return nil, f, ctx.Err()
						case <-time.After(time.Second):
							return s, f, nil
						}
					},
				})
				return p, nil
			},
			WithConcurrency(2),
		)

		samples := make([]*model.Sample, 10)
		for i := range samples {
			samples[i] = newTestSample(t, "s.dat")
		}

		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := bp.ProcessBatch(ctx, samples)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		//nolint:gosec // len(samples) is small, no overflow risk
		if started.Load() >= int32(len(samples)) {
			t.Error("expected some samples to not start due to cancellation")
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests callback-based processing.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	received := make(map[string]bool)

	bp := NewBatchProcessor(singleStage(&mockStage{name: "noop"}), WithConcurrency(1))

	sources := []string{"first.dat", "second.dat", "third.dat"}
	err := bp.ProcessBatchWithCallback(
		context.Background(),
		testSamples(t, sources...),
		func(result *model.Result, _ int) {
			mu.Lock()
			received[result.Source] = true
			mu.Unlock()
		},
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, src := range sources {
		if !received[src] {
			t.Errorf("missing callback for %q", src)
		}
	}
}
