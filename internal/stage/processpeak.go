package stage

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/nao1215/saxsflow/internal/fitting"
	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
	"gonum.org/v1/gonum/floats"
)

// maxSigma is the widest Gaussian a single peak may have, in q units.
const maxSigma = 0.05

// ProcessPeak fits the selected peak and subtracts it from the intensity.
//
// The fit runs in two passes. A parabola over a fixed window of FitRange
// points on each side gives a robust width estimate; that width sets the
// window of the Gaussian fit, which is seeded with the parabola result.
// The fitted Gaussian is subtracted over the whole curve and the
// remainder clipped at zero.
type ProcessPeak struct {
	options
	cfg ProcessPeakConfig
}

// NewProcessPeak creates a ProcessPeak stage.
func NewProcessPeak(cfg ProcessPeakConfig, opts ...Option) (*ProcessPeak, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ProcessPeak{options: newOptions(NameProcessPeak, opts), cfg: cfg}, nil
}

// Config returns the stage configuration.
func (p *ProcessPeak) Config() ProcessPeakConfig { return p.cfg }

// PreHandle implements pipeline.PreHandler. It makes the selected index
// visible to Transform.
func (p *ProcessPeak) PreHandle(s *model.Sample, flow model.FlowMetadata) *model.Sample {
	return s.WithMetadata(model.KeyCurrent, flow.Current)
}

// Transform implements pipeline.Transformer. A sample without a valid
// selected index is returned unchanged.
func (p *ProcessPeak) Transform(_ context.Context, s *model.Sample) (*model.Sample, error) {
	c := currentIndex(s)
	if !c.Valid() || int(c) >= s.Len() {
		p.logger.Debug("no peak selected", "current", c)
		return s, nil
	}
	idx := int(c)

	q, intensity := s.Q(), s.Intensity()
	dq := s.MeanSpacing()
	mu := q[idx]
	lower := []float64{dq * dq, 1}
	upper := []float64{maxSigma, 4 * floats.Max(intensity)}

	from, to := window(idx, p.cfg.FitRange, s.Len())
	parabola, err := fitting.CurveFit(fitting.Parabola(mu), q[from:to], intensity[from:to], fitting.Options{
		P0: []float64{
			clamp(float64(p.cfg.FitRange+1)*dq, lower[0], upper[0]),
			clamp(intensity[idx], lower[1], upper[1]),
		},
		Lower: lower,
		Upper: upper,
		Sigma: errorWindow(s, from, to),
	})
	if err != nil {
		return p.fail(s, idx, err)
	}

	w := max(1, int(math.Round(parabola.Params[0]/dq)))
	from, to = window(idx, w, s.Len())
	gauss, err := fitting.CurveFit(fitting.Gaussian(mu), q[from:to], intensity[from:to], fitting.Options{
		P0:    parabola.Params,
		Lower: lower,
		Upper: upper,
		Sigma: errorWindow(s, from, to),
	})
	if err != nil {
		return p.fail(s, idx, err)
	}

	fitted := fitting.Evaluate(fitting.Gaussian(mu), q, gauss.Params)
	residual := make([]float64, len(intensity))
	for i := range intensity {
		residual[i] = max(0, intensity[i]-fitted[i])
	}

	peak := model.Peak{
		Index:         idx,
		Q:             mu,
		Height:        intensity[idx],
		Amplitude:     gauss.Params[1],
		Sigma:         gauss.Params[0],
		AmplitudeErr:  gauss.Errors[1],
		SigmaErr:      gauss.Errors[0],
		ParabolaSigma: parabola.Params[0],
		Window:        w,
		Status:        model.PeakFitted,
	}
	p.logger.Debug("peak fitted",
		"index", idx,
		"q", mu,
		"amplitude", peak.Amplitude,
		"sigma", peak.Sigma,
		"window", w,
	)

	next, err := s.WithIntensity(residual)
	if err != nil {
		return nil, err
	}
	return next.WithMetadata(model.KeyPeaks, append(slices.Clone(s.Peaks()), peak)), nil
}

// fail records a peak whose fit did not converge and leaves the
// intensity untouched. Other fitting errors, and exceeding
// MaxFitFailures, abort the run.
func (p *ProcessPeak) fail(s *model.Sample, idx int, err error) (*model.Sample, error) {
	if !errors.Is(err, fitting.ErrFitConvergence) {
		return nil, &PeakError{Index: idx, Err: err}
	}

	failed := append(slices.Clone(s.FailedPeaks()), idx)
	peaks := append(slices.Clone(s.Peaks()), model.Peak{
		Index:  idx,
		Q:      s.Q()[idx],
		Height: s.Intensity()[idx],
		Status: model.PeakFitFailed,
	})
	p.logger.Warn("peak fit failed", "index", idx, "failures", len(failed), "error", err)

	if p.cfg.MaxFitFailures > 0 && len(failed) >= p.cfg.MaxFitFailures {
		return nil, &PeakError{Index: idx, Err: errors.Join(ErrTooManyFitFailures, err)}
	}
	return s.WithMetadata(model.KeyFailedPeaks, failed).WithMetadata(model.KeyPeaks, peaks), nil
}

// PostHandle implements pipeline.PostHandler. The selected index is
// marked processed whether or not its fit converged.
func (p *ProcessPeak) PostHandle(s *model.Sample, flow model.FlowMetadata) model.FlowMetadata {
	if c := currentIndex(s); c.Valid() {
		flow = flow.WithProcessed(int(c))
	}
	return flow.WithCurrent(model.ProcessedPeak)
}

// Process implements pipeline.Stage.
func (p *ProcessPeak) Process(ctx context.Context, s *model.Sample, flow model.FlowMetadata) (*model.Sample, model.FlowMetadata, error) {
	return pipeline.Apply(ctx, p, s, flow)
}

// RequestStage implements pipeline.Requester.
func (p *ProcessPeak) RequestStage(flow model.FlowMetadata) ([]pipeline.ApprovalRequest, error) {
	return p.request(model.Metadata{
		model.KeyCurrent:   flow.Current,
		model.KeyProcessed: slices.Clone(flow.Processed),
	}, flow)
}

func currentIndex(s *model.Sample) model.PeakIndex {
	v, ok := s.Value(model.KeyCurrent)
	if !ok {
		return model.UndefinedPeak
	}
	c, ok := v.(model.PeakIndex)
	if !ok {
		return model.UndefinedPeak
	}
	return c
}

// window returns the half-open bounds of [c−half, c+half] clipped to n.
func window(c, half, n int) (from, to int) {
	return max(0, c-half), min(n, c+half+1)
}

// errorWindow returns the intensity error over [from, to), or nil.
func errorWindow(s *model.Sample, from, to int) []float64 {
	if !s.HasError() {
		return nil
	}
	return s.IntensityError()[from:to]
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
