package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/saxsflow/internal/model"
	"golang.org/x/sync/errgroup"
)

// PipelineFactory builds the pipeline for one sample. It receives the
// sample so per-file parameters can shape the pipeline.
type PipelineFactory func(s *model.Sample) (*Pipeline, error)

// BatchProcessor handles concurrent analysis of many independent samples.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. A run stays strictly sequential; only whole runs execute in parallel
// 2. Each sample gets its own pipeline, so stateful policies never leak
// 3. It keeps Pipeline focused on single-sample execution
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each sample.
	pipelineFactory PipelineFactory

	// concurrency is the maximum number of concurrent runs.
	concurrency int

	// timeout bounds each run when > 0.
	timeout time.Duration

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed run results.
	// Access is synchronized via mutex.
	results []*model.Result
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Default is 10 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithTimeout bounds every single run. A run that exceeds it fails with
// context.DeadlineExceeded while the rest of the batch continues.
func WithTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		b.timeout = d
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each sample to create a fresh
// pipeline instance.
func NewBatchProcessor(pipelineFactory PipelineFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     10,
		results:         make([]*model.Result, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch analyses multiple samples concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Returns one result per sample in input order, even for samples whose run
// failed; the failure is recorded in Result.Error. Samples that never
// started because the context was cancelled leave a nil entry. The error
// return reports cancellation only.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, samples []*model.Sample) ([]*model.Result, error) {
	bp.logger.Info("starting batch processing",
		"total_samples", len(samples),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	bp.results = make([]*model.Result, len(samples))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, sample := range samples {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("analysing sample",
				"source", sample.Source(),
				"index", i+1,
				"total", len(samples),
			)

			result := bp.run(ctx, sample)

			bp.mu.Lock()
			bp.results[i] = result
			bp.mu.Unlock()

			if result.Failed() {
				bp.logger.Warn("analysis failed",
					"source", sample.Source(),
					"error", result.Error,
				)
				return nil
			}

			bp.logger.Info("analysis completed",
				"source", sample.Source(),
				"peaks", len(result.Peaks),
			)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_samples", len(samples),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// ProcessBatchWithCallback analyses multiple samples and calls callback
// for each completed run. The callback is called from the goroutine that
// completed the run, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	samples []*model.Sample,
	callback func(result *model.Result, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_samples", len(samples),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, sample := range samples {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			callback(bp.run(ctx, sample), i)
			return nil
		})
	}

	return g.Wait()
}

// run executes one fresh pipeline and converts the outcome to a Result.
func (bp *BatchProcessor) run(ctx context.Context, sample *model.Sample) *model.Result {
	result := model.NewResult(sample.Source())
	result.Fingerprint = sample.Fingerprint()

	if bp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bp.timeout)
		defer cancel()
	}

	p, err := bp.pipelineFactory(sample)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	final, err := p.Run(ctx, sample)
	result.Fill(final)
	result.DateAnalyzed = time.Now()
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
