package stage

import (
	"context"
	"fmt"
	"math"

	"github.com/nao1215/saxsflow/internal/fitting"
	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
	"gonum.org/v1/gonum/stat"
)

// Background fits a smooth background model to the whole curve and
// subtracts a fraction Coef of it. The fit is recorded under
// model.KeyBackground.
type Background struct {
	options
	cfg   BackgroundConfig
	model fitting.Model
}

// NewBackground creates a Background stage.
func NewBackground(cfg BackgroundConfig, opts ...Option) (*Background, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Background{options: newOptions(NameBackground, opts), cfg: cfg}
	switch cfg.Model {
	case ModelExponent:
		b.model = fitting.Exponent
	default:
		b.model = fitting.Hyperbola
	}
	return b, nil
}

// Config returns the stage configuration.
func (b *Background) Config() BackgroundConfig { return b.cfg }

// Transform implements pipeline.Transformer.
func (b *Background) Transform(_ context.Context, s *model.Sample) (*model.Sample, error) {
	q, intensity := s.Q(), s.Intensity()
	if b.cfg.Model == ModelHyperbola && q[0] <= 0 {
		return nil, fmt.Errorf("%w: q[0] = %g", ErrNonPositiveQ, q[0])
	}

	p0 := b.seed(q, intensity)
	res, err := fitting.CurveFit(b.model, q, intensity, fitting.Options{
		P0:    p0,
		Sigma: s.IntensityError(),
	})
	if err != nil {
		return nil, fmt.Errorf("background fit: %w", err)
	}

	out := make([]float64, len(intensity))
	for i := range intensity {
		out[i] = intensity[i] - b.cfg.Coef*b.model(q[i], res.Params)
	}

	fit := model.BackgroundFit{
		Model: b.cfg.Model,
		A:     res.Params[0],
		B:     res.Params[1],
		Coef:  b.cfg.Coef,
	}
	b.logger.Debug("background fitted",
		"model", fit.Model,
		"a", fit.A,
		"b", fit.B,
		"iterations", res.Iterations,
	)

	next, err := s.WithIntensity(out)
	if err != nil {
		return nil, err
	}
	return next.WithMetadata(model.KeyBackground, fit), nil
}

// seed linearises the model in log space and regresses it when every
// intensity is positive. Otherwise it falls back to the configured P0.
func (b *Background) seed(q, intensity []float64) []float64 {
	fallback := []float64{b.cfg.P0[0], b.cfg.P0[1]}
	if len(q) < 2 {
		return fallback
	}

	xs := make([]float64, len(q))
	ys := make([]float64, len(q))
	for i := range q {
		if intensity[i] <= 0 {
			return fallback
		}
		ys[i] = math.Log(intensity[i])
		if b.cfg.Model == ModelHyperbola {
			xs[i] = math.Log(q[i])
		} else {
			xs[i] = q[i]
		}
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(alpha, 0) || math.IsInf(beta, 0) {
		return fallback
	}
	if b.cfg.Model == ModelHyperbola {
		// log I = log b − a·log q
		return []float64{-beta, math.Exp(alpha)}
	}
	// log I = log b + a·q
	return []float64{beta, math.Exp(alpha)}
}

// Process implements pipeline.Stage.
func (b *Background) Process(ctx context.Context, s *model.Sample, flow model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
	return pipeline.Apply(ctx, b, s, flow)
}

// RequestStage implements pipeline.Requester.
func (b *Background) RequestStage(flow model.FlowMetadata) ([]pipeline.ApprovalRequest, error) {
	return b.request(model.Metadata{}, flow)
}
