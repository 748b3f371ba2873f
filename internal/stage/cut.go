package stage

import (
	"context"
	"fmt"

	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
)

// Cut drops the first CutPoint points of a sample, typically the
// beam-stop shadow at low q.
type Cut struct {
	options
	cfg CutConfig
}

// NewCut creates a Cut stage.
func NewCut(cfg CutConfig, opts ...Option) (*Cut, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cut{options: newOptions(NameCut, opts), cfg: cfg}, nil
}

// Config returns the stage configuration.
func (c *Cut) Config() CutConfig { return c.cfg }

// Transform implements pipeline.Transformer.
func (c *Cut) Transform(_ context.Context, s *model.Sample) (*model.Sample, error) {
	if c.cfg.CutPoint >= s.Len() {
		return nil, fmt.Errorf("%w: cut_point %d, %d points", ErrCutOutOfRange, c.cfg.CutPoint, s.Len())
	}
	c.logger.Debug("cutting sample", "cut_point", c.cfg.CutPoint, "points", s.Len())
	return s.Slice(c.cfg.CutPoint, s.Len())
}

// Process implements pipeline.Stage.
func (c *Cut) Process(ctx context.Context, s *model.Sample, flow model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
	return pipeline.Apply(ctx, c, s, flow)
}

// RequestStage implements pipeline.Requester.
func (c *Cut) RequestStage(flow model.FlowMetadata) ([]pipeline.ApprovalRequest, error) {
	return c.request(model.Metadata{}, flow)
}
