package stage

import (
	"context"
	"slices"

	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
	"github.com/nao1215/saxsflow/internal/signal"
)

// FindPeak searches the intensity for peak candidates that have not been
// processed yet and selects the largest one for fitting.
type FindPeak struct {
	options
	cfg FindPeakConfig
}

// NewFindPeak creates a FindPeak stage.
func NewFindPeak(cfg FindPeakConfig, opts ...Option) (*FindPeak, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FindPeak{options: newOptions(NameFindPeak, opts), cfg: cfg}, nil
}

// Config returns the stage configuration.
func (f *FindPeak) Config() FindPeakConfig { return f.cfg }

// PreHandle implements pipeline.PreHandler. It makes the processed set
// visible to Transform.
func (f *FindPeak) PreHandle(s *model.Sample, flow model.FlowMetadata) *model.Sample {
	return s.WithMetadata(model.KeyProcessed, slices.Clone(flow.Processed))
}

// Transform implements pipeline.Transformer. The candidates are stored
// under model.KeyUnprocessed as index to intensity.
func (f *FindPeak) Transform(_ context.Context, s *model.Sample) (*model.Sample, error) {
	var done []int
	if v, ok := s.Value(model.KeyProcessed); ok {
		done, _ = v.([]int)
	}

	candidates := signal.FindPeaks(s.Intensity(), signal.Options{
		Height:     f.cfg.Height,
		Prominence: f.cfg.Prominence,
		Distance:   f.cfg.Distance,
	})

	unprocessed := make(map[int]float64, len(candidates))
	for _, c := range candidates {
		if _, found := slices.BinarySearch(done, c.Index); found {
			continue
		}
		unprocessed[c.Index] = c.Value
	}

	f.logger.Debug("peak search",
		"found", len(candidates),
		"unprocessed", len(unprocessed),
		"processed", len(done),
	)
	return s.WithMetadata(model.KeyUnprocessed, unprocessed), nil
}

// PostHandle implements pipeline.PostHandler. It replaces the flow's
// candidate set with the result of this search.
func (f *FindPeak) PostHandle(s *model.Sample, flow model.FlowMetadata) model.FlowMetadata {
	var candidates map[int]float64
	if v, ok := s.Value(model.KeyUnprocessed); ok {
		candidates, _ = v.(map[int]float64)
	}
	return flow.WithUnprocessed(candidates)
}

// Process implements pipeline.Stage.
func (f *FindPeak) Process(ctx context.Context, s *model.Sample, flow model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
	return pipeline.Apply(ctx, f, s, flow)
}

// RequestStage implements pipeline.Requester. It takes the largest
// candidate and offers it to the chaining policy under model.KeyCurrent.
// With no candidates left the offered index is model.UndefinedPeak.
func (f *FindPeak) RequestStage(flow model.FlowMetadata) ([]pipeline.ApprovalRequest, error) {
	current, next := flow.TakeLargest()
	f.logger.Debug("selected peak", "current", current, "remaining", len(next.Unprocessed))
	return f.request(model.Metadata{model.KeyCurrent: current}, next)
}
