package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/nao1215/saxsflow/internal/fitting"
	"github.com/nao1215/saxsflow/internal/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Default plot size.
const (
	DefaultPlotWidth  = 10 * vg.Inch
	DefaultPlotHeight = 6 * vg.Inch
)

var (
	measuredColor   = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	backgroundColor = color.RGBA{R: 30, G: 110, B: 200, A: 255}
	modelColor      = color.RGBA{R: 210, G: 60, B: 40, A: 255}
	peakColor       = color.RGBA{R: 20, G: 150, B: 60, A: 255}
)

// PlotWriter renders a curve together with the model a run extracted from
// it: the subtracted background fraction plus every fitted Gaussian.
//
// Design decision: PlotWriter does not implement Writer, because a plot
// needs the measured curve, which a Result does not carry.
type PlotWriter struct {
	width  vg.Length
	height vg.Length
}

// PlotOption configures a PlotWriter.
type PlotOption func(*PlotWriter)

// WithPlotSize sets the image size.
func WithPlotSize(width, height vg.Length) PlotOption {
	return func(w *PlotWriter) {
		w.width = width
		w.height = height
	}
}

// NewPlotWriter creates a PlotWriter.
func NewPlotWriter(opts ...PlotOption) *PlotWriter {
	w := &PlotWriter{
		width:  DefaultPlotWidth,
		height: DefaultPlotHeight,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Render builds the plot of sample s and its result r.
func (w *PlotWriter) Render(s *model.Sample, r *model.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = filepath.Base(r.Source)
	p.X.Label.Text = "q"
	p.Y.Label.Text = "I(q)"

	q := s.Q()

	measured, err := plotter.NewLine(points(q, s.Intensity()))
	if err != nil {
		return nil, fmt.Errorf("measured curve: %w", err)
	}
	measured.Color = measuredColor
	measured.Width = vg.Points(1)
	p.Add(measured)
	p.Legend.Add("measured", measured)

	background := make([]float64, len(q))
	if bg := r.Background; bg != nil {
		f := fitting.Hyperbola
		if bg.Model == "exponent" {
			f = fitting.Exponent
		}
		params := []float64{bg.A, bg.B}
		for i, x := range q {
			background[i] = bg.Coef * f(x, params)
		}

		line, err := plotter.NewLine(points(q, background))
		if err != nil {
			return nil, fmt.Errorf("background curve: %w", err)
		}
		line.Color = backgroundColor
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("background", line)
	}

	fitted := r.FittedPeaks()
	if len(fitted) == 0 {
		return w.finish(p), nil
	}

	total := make([]float64, len(q))
	markers := make(plotter.XYs, 0, len(fitted))
	for i, x := range q {
		total[i] = background[i]
		for _, pk := range fitted {
			total[i] += fitting.Gaussian(pk.Q)(x, []float64{pk.Sigma, pk.Amplitude})
		}
	}
	for _, pk := range fitted {
		markers = append(markers, plotter.XY{X: pk.Q, Y: total[nearest(q, pk.Q)]})
	}

	line, err := plotter.NewLine(points(q, total))
	if err != nil {
		return nil, fmt.Errorf("model curve: %w", err)
	}
	line.Color = modelColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("model", line)

	sc, err := plotter.NewScatter(markers)
	if err != nil {
		return nil, fmt.Errorf("peak markers: %w", err)
	}
	sc.GlyphStyle.Color = peakColor
	sc.GlyphStyle.Shape = draw.CrossGlyph{}
	sc.GlyphStyle.Radius = vg.Points(4)
	p.Add(sc)
	p.Legend.Add("peaks", sc)

	return w.finish(p), nil
}

func (w *PlotWriter) finish(p *plot.Plot) *plot.Plot {
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

// WriteTo renders the plot as PNG into out.
func (w *PlotWriter) WriteTo(out io.Writer, s *model.Sample, r *model.Result) error {
	p, err := w.Render(s, r)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(w.width, w.height, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

// Save renders the plot into path. The image format follows the file
// extension; parent directories are created.
func (w *PlotWriter) Save(path string, s *model.Sample, r *model.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	p, err := w.Render(s, r)
	if err != nil {
		return err
	}
	if err := p.Save(w.width, w.height, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// points pairs x and y, dropping non-finite values.
func points(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	return pts
}

// nearest returns the index of the q value closest to v.
func nearest(q []float64, v float64) int {
	best := 0
	for i := range q {
		if math.Abs(q[i]-v) < math.Abs(q[best]-v) {
			best = i
		}
	}
	return best
}
