package pipeline

import (
	"context"

	"github.com/nao1215/saxsflow/internal/model"
)

// Stage is one unit of work in a run.
//
// Design decision: Process receives and returns FlowMetadata by value
// instead of sharing a mutable state object, so a stage cannot change
// what an earlier stage observed and the scheduler always knows which
// flow is current.
type Stage interface {
	// Name returns the stage's name for logging and the run trace.
	Name() string

	// Process transforms the sample. It must not modify its input and
	// returns the new sample together with the updated flow metadata.
	// A returned error aborts the run.
	Process(ctx context.Context, sample *model.Sample, flow model.FlowMetadata) (*model.Sample, model.FlowMetadata, error)
}

// Requester is implemented by stages that may ask for follow-up stages
// after they ran. Stages that do not implement it never request.
type Requester interface {
	RequestStage(flow model.FlowMetadata) ([]ApprovalRequest, error)
}

// Transformer is the core computation of a stage.
type Transformer interface {
	Transform(ctx context.Context, sample *model.Sample) (*model.Sample, error)
}

// PreHandler copies flow state into the sample before Transform.
type PreHandler interface {
	PreHandle(sample *model.Sample, flow model.FlowMetadata) *model.Sample
}

// PostHandler copies results from the sample into the flow after
// Transform.
type PostHandler interface {
	PostHandle(sample *model.Sample, flow model.FlowMetadata) model.FlowMetadata
}

// Apply runs t's hooks in order: PreHandle when t is a PreHandler,
// Transform, then PostHandle when t is a PostHandler. Stages implement
// Process by calling Apply on themselves.
func Apply(
	ctx context.Context,
	t Transformer,
	sample *model.Sample,
	flow model.FlowMetadata,
) (*model.Sample, model.FlowMetadata, error) {
	if pre, ok := t.(PreHandler); ok {
		sample = pre.PreHandle(sample, flow)
	}

	out, err := t.Transform(ctx, sample)
	if err != nil {
		return nil, flow, err
	}
	if out == nil {
		return nil, flow, ErrNilSample
	}

	if post, ok := t.(PostHandler); ok {
		flow = post.PostHandle(out, flow)
	}
	return out, flow, nil
}
