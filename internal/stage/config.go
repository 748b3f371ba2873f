package stage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// Stage names used when no explicit name is given.
const (
	NameCut         = "cut"
	NameFilter      = "filter"
	NameBackground  = "background"
	NameFindPeak    = "find_peak"
	NameProcessPeak = "process_peak"
)

// Background model names.
const (
	ModelHyperbola = "hyperbola"
	ModelExponent  = "exponent"
)

// CutConfig configures Cut.
type CutConfig struct {
	// CutPoint is the number of leading points to drop.
	CutPoint int `yaml:"cut_point"`
}

// DefaultCutConfig returns the default Cut configuration.
func DefaultCutConfig() CutConfig {
	return CutConfig{CutPoint: 100}
}

// Validate checks the configuration.
func (c CutConfig) Validate() error {
	if c.CutPoint < 0 {
		return fmt.Errorf("%w: cut_point must be non-negative, got %d", ErrInvalidConfig, c.CutPoint)
	}
	return nil
}

// FilterConfig configures Filter.
type FilterConfig struct {
	// Window is the moving-average width in points.
	Window int `yaml:"window"`
}

// DefaultFilterConfig returns the default Filter configuration.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{Window: 10}
}

// Validate checks the configuration.
func (c FilterConfig) Validate() error {
	if c.Window < 1 {
		return fmt.Errorf("%w: window must be at least 1, got %d", ErrInvalidConfig, c.Window)
	}
	return nil
}

// BackgroundConfig configures Background.
type BackgroundConfig struct {
	// Model selects the background shape: "hyperbola" (b·q^−a) or
	// "exponent" (b·exp(a·q)).
	Model string `yaml:"model"`

	// Coef is the fraction of the fitted background that is subtracted.
	Coef float64 `yaml:"coef"`

	// P0 is the (a, b) starting point used when the data cannot seed one.
	P0 []float64 `yaml:"p0"`
}

// DefaultBackgroundConfig returns the default Background configuration.
func DefaultBackgroundConfig() BackgroundConfig {
	return BackgroundConfig{
		Model: ModelHyperbola,
		Coef:  0.7,
		P0:    []float64{3, 2},
	}
}

// Validate checks the configuration.
func (c BackgroundConfig) Validate() error {
	if !slices.Contains([]string{ModelHyperbola, ModelExponent}, c.Model) {
		return fmt.Errorf("%w: unknown background model %q", ErrInvalidConfig, c.Model)
	}
	if c.Coef < 0 {
		return fmt.Errorf("%w: coef must be non-negative, got %g", ErrInvalidConfig, c.Coef)
	}
	if len(c.P0) != 2 {
		return fmt.Errorf("%w: p0 needs two values, got %d", ErrInvalidConfig, len(c.P0))
	}
	return nil
}

// FindPeakConfig configures FindPeak.
type FindPeakConfig struct {
	// Height is the minimum intensity of a candidate.
	Height float64 `yaml:"height"`

	// Prominence is the minimum prominence of a candidate.
	Prominence float64 `yaml:"prominence"`

	// Distance is the minimum index distance between candidates.
	Distance int `yaml:"distance"`
}

// DefaultFindPeakConfig returns the default FindPeak configuration.
func DefaultFindPeakConfig() FindPeakConfig {
	return FindPeakConfig{
		Height:     0.5,
		Prominence: 0.3,
		Distance:   10,
	}
}

// Validate checks the configuration.
func (c FindPeakConfig) Validate() error {
	if c.Height < 0 || c.Prominence < 0 || c.Distance < 0 {
		return fmt.Errorf("%w: height, prominence and distance must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// ProcessPeakConfig configures ProcessPeak.
type ProcessPeakConfig struct {
	// FitRange is the half-width, in points, of the parabolic pre-fit.
	FitRange int `yaml:"fit_range"`

	// MaxFitFailures aborts the run once this many peak fits have failed.
	// Zero never aborts.
	MaxFitFailures int `yaml:"max_fit_failures"`
}

// DefaultProcessPeakConfig returns the default ProcessPeak configuration.
func DefaultProcessPeakConfig() ProcessPeakConfig {
	return ProcessPeakConfig{FitRange: 2}
}

// Validate checks the configuration.
func (c ProcessPeakConfig) Validate() error {
	if c.FitRange < 1 {
		return fmt.Errorf("%w: fit_range must be at least 1, got %d", ErrInvalidConfig, c.FitRange)
	}
	if c.MaxFitFailures < 0 {
		return fmt.Errorf("%w: max_fit_failures must be non-negative, got %d", ErrInvalidConfig, c.MaxFitFailures)
	}
	return nil
}

// DecodeConfig overlays keyword arguments onto dst, which should already
// hold the defaults. Unknown keys are rejected.
//
// Design decision: kwargs are round-tripped through YAML so pipeline
// documents and Go callers share one decoding path, including the
// strict unknown-field check.
func DecodeConfig(kwargs map[string]any, dst any) error {
	if len(kwargs) == 0 {
		return nil
	}

	data, err := yaml.Marshal(kwargs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err) //nolint:errorlint // yaml errors are not part of the API
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err) //nolint:errorlint // yaml errors are not part of the API
	}
	return nil
}
