package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/saxsflow/internal/model"
)

// Pipeline holds the initial stage list of a run and the settings of
// the scheduler that executes it. A Pipeline can run any number of
// samples; every run gets a fresh Scheduler and insertion policy.
type Pipeline struct {
	// stages contains the initial stages in execution order.
	stages []Stage

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// insertion builds the insertion policy of each run.
	insertion InsertionFactory
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithInsertion sets the insertion policy factory.
// If not set, DefaultInsertion() is used.
func WithInsertion(f InsertionFactory) Option {
	return func(p *Pipeline) {
		p.insertion = f
	}
}

// New creates a new Pipeline with the given options.
// Stages should be added using AddStage after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: make([]Stage, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.insertion == nil {
		p.insertion = DefaultInsertion()
	}

	return p
}

// AddStage appends a stage to the initial list.
func (p *Pipeline) AddStage(stage Stage) {
	p.stages = append(p.stages, stage)
}

// AddStages appends multiple stages to the initial list.
func (p *Pipeline) AddStages(stages ...Stage) {
	p.stages = append(p.stages, stages...)
}

// Run executes the pipeline on sample. The returned sample carries the
// executed stage trace under model.KeyTrace and the scheduler counters
// under model.KeyStats, also when the run failed part way.
func (p *Pipeline) Run(ctx context.Context, sample *model.Sample) (*model.Sample, error) {
	sched := NewScheduler(p.stages, p.insertion(), WithSchedulerLogger(p.logger))

	p.logger.Info("starting run",
		"source", sample.Source(),
		"points", sample.Len(),
		"stages", len(p.stages),
	)

	out, err := sched.Run(ctx, sample)
	if out != nil {
		out = out.WithMetadata(model.KeyTrace, sched.Trace()).
			WithMetadata(model.KeyStats, sched.Stats())
	}
	if err != nil {
		return out, err
	}

	stats := sched.Stats()
	p.logger.Info("run complete",
		"source", sample.Source(),
		"executed", stats.Executed,
		"approved", stats.Approved,
		"rejected", stats.Rejected,
	)
	if stats.Saturated {
		p.logger.Warn("insertion policy saturated; peak extraction may be incomplete",
			"source", sample.Source(),
			"rejected", stats.Rejected,
		)
	}
	return out, nil
}

// StageCount returns the number of initial stages.
func (p *Pipeline) StageCount() int {
	return len(p.stages)
}

// StageNames returns the names of the initial stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name()
	}
	return names
}
