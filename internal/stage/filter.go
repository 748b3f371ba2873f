package stage

import (
	"context"
	"fmt"

	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
	"github.com/nao1215/saxsflow/internal/signal"
)

// Filter smooths the intensity with a moving average.
type Filter struct {
	options
	cfg FilterConfig
}

// NewFilter creates a Filter stage.
func NewFilter(cfg FilterConfig, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Filter{options: newOptions(NameFilter, opts), cfg: cfg}, nil
}

// Config returns the stage configuration.
func (f *Filter) Config() FilterConfig { return f.cfg }

// Transform implements pipeline.Transformer.
func (f *Filter) Transform(_ context.Context, s *model.Sample) (*model.Sample, error) {
	smoothed, err := signal.MovingAverage(s.Intensity(), f.cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	f.logger.Debug("smoothed intensity", "window", f.cfg.Window, "intensity", smoothed)
	return s.WithIntensity(smoothed)
}

// Process implements pipeline.Stage.
func (f *Filter) Process(ctx context.Context, s *model.Sample, flow model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
	return pipeline.Apply(ctx, f, s, flow)
}

// RequestStage implements pipeline.Requester.
func (f *Filter) RequestStage(flow model.FlowMetadata) ([]pipeline.ApprovalRequest, error) {
	return f.request(model.Metadata{}, flow)
}
