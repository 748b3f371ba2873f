package stage

import (
	"log/slog"

	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
)

// Option configures a stage.
type Option func(*options)

type options struct {
	name   string
	logger *slog.Logger
	policy *pipeline.ChainingPolicy
}

// WithName overrides the stage name used in logs and the run trace.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the stage's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPolicy attaches the chaining policy consulted after each run.
// Without a policy a stage never requests follow-up stages.
func WithPolicy(policy *pipeline.ChainingPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

func newOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("stage", o.name)
	return o
}

// Name returns the stage name.
func (o options) Name() string { return o.name }

// Policy returns the attached chaining policy, or nil.
func (o options) Policy() *pipeline.ChainingPolicy { return o.policy }

// request asks the attached policy for follow-up stages.
func (o options) request(eval model.Metadata, flow model.FlowMetadata) ([]pipeline.ApprovalRequest, error) {
	return o.policy.Request(pipeline.StageRequest{
		EvalMetadata:      eval,
		SchedulerMetadata: model.Metadata{"requested_by": o.name},
		Flow:              flow,
	})
}
