package pipeline

import (
	"context"
	"log/slog"
	"slices"

	"github.com/nao1215/saxsflow/internal/model"
)

// State is the scheduler lifecycle state.
type State int

const (
	// StateRunning means the queue is being drained.
	StateRunning State = iota

	// StateDone means the queue is empty and the run is complete.
	StateDone
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Scheduler executes a FIFO queue of stages, appending stages that were
// requested at run time and approved by the insertion policy.
// A Scheduler runs once; create a new one for every sample.
type Scheduler struct {
	queue     []Stage
	insertion InsertionPolicy
	logger    *slog.Logger

	state State
	stats model.RunStats
	trace []string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a scheduler over the initial stages. A nil
// insertion policy selects the default saturation policy.
func NewScheduler(stages []Stage, insertion InsertionPolicy, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		queue:     slices.Clone(stages),
		insertion: insertion,
		state:     StateRunning,
		trace:     make([]string, 0, len(stages)),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.insertion == nil {
		s.insertion = DefaultInsertion()()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Run drains the queue starting from sample and returns the final
// sample. On failure it returns the last sample produced before the
// failing stage together with a *StageError, or ctx.Err() when the
// context was cancelled between stages.
//
// A rejected request is not an error: the run simply continues with
// the remaining queue.
func (s *Scheduler) Run(ctx context.Context, sample *model.Sample) (*model.Sample, error) {
	flow := model.NewFlowMetadata()

	for len(s.queue) > 0 {
		stage := s.queue[0]
		s.queue = s.queue[1:]

		select {
		case <-ctx.Done():
			s.logger.Warn("run cancelled",
				"stage", stage.Name(),
				"reason", ctx.Err(),
			)
			return sample, ctx.Err()
		default:
		}

		s.logger.Debug("executing stage",
			"stage", stage.Name(),
			"queued", len(s.queue),
		)

		out, next, err := stage.Process(ctx, sample, flow)
		if err != nil {
			s.logger.Error("stage failed",
				"stage", stage.Name(),
				"error", err,
			)
			return sample, &StageError{Stage: stage.Name(), Err: err}
		}
		if out == nil {
			return sample, &StageError{Stage: stage.Name(), Err: ErrNilSample}
		}
		sample, flow = out, next
		s.stats.Executed++
		s.trace = append(s.trace, stage.Name())

		requester, ok := stage.(Requester)
		if !ok {
			continue
		}
		requests, err := requester.RequestStage(flow)
		if err != nil {
			return sample, &StageError{Stage: stage.Name(), Err: err}
		}
		for _, req := range requests {
			if !s.insertion.Approve(req) {
				s.stats.Rejected++
				s.stats.Saturated = true
				s.logger.Info("stage request rejected",
					"from", stage.Name(),
					"requested", req.Stage.Name(),
				)
				continue
			}
			s.stats.Approved++
			s.queue = append(s.queue, req.Stage)
			flow = req.Flow
			s.logger.Debug("stage request approved",
				"from", stage.Name(),
				"requested", req.Stage.Name(),
				"current", flow.Current,
			)
		}
	}

	s.state = StateDone
	return sample, nil
}

// State returns the lifecycle state.
func (s *Scheduler) State() State { return s.state }

// Stats returns the run counters.
func (s *Scheduler) Stats() model.RunStats { return s.stats }

// Trace returns the names of the executed stages in order.
func (s *Scheduler) Trace() []string { return slices.Clone(s.trace) }
