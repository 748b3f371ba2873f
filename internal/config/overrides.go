package config

import (
	"path/filepath"
	"slices"

	"github.com/nao1215/saxsflow/internal/stage"
)

// Overrides tunes stage parameters. A zero field keeps the value of the
// pipeline definition.
type Overrides struct {
	// CutPoint is the number of leading points the cut stage drops.
	CutPoint int `yaml:"cutPoint,omitempty"`

	// FilterWindow is the moving-average window of the filter stage.
	FilterWindow int `yaml:"filterWindow,omitempty"`

	// BackgroundModel is "hyperbola" or "exponent".
	BackgroundModel string `yaml:"backgroundModel,omitempty"`

	// BackgroundCoef is the fraction of the fitted background subtracted.
	BackgroundCoef float64 `yaml:"backgroundCoef,omitempty"`

	// Height, Prominence and Distance tune the peak search.
	Height     float64 `yaml:"height,omitempty"`
	Prominence float64 `yaml:"prominence,omitempty"`
	Distance   int     `yaml:"distance,omitempty"`

	// FitRange is the half-width in points of the parabolic fit.
	FitRange int `yaml:"fitRange,omitempty"`

	// MaxFitFailures aborts a run after this many consecutive failed fits.
	MaxFitFailures int `yaml:"maxFitFailures,omitempty"`
}

// File represents the structure of the .saxsflow configuration file.
//
// Example:
//
//	defaults:
//	  cutPoint: 150
//	files:
//	  "lipid_*.dat":
//	    height: 0.2
type File struct {
	// Files maps a path, a base name or a base-name glob to overrides.
	Files map[string]Overrides `yaml:"files,omitempty"`

	// Defaults apply to every file unless overridden in Files.
	Defaults Overrides `yaml:"defaults,omitempty"`
}

// GetFileConfig returns the overrides for the curve at path, merged over
// the defaults. An exact path key wins over a base-name key, which wins
// over glob keys; glob keys are tried in sorted order.
func (cf *File) GetFileConfig(path string) Overrides {
	result := cf.Defaults

	if o, ok := cf.lookup(path); ok {
		result = merge(result, o)
	}
	return result
}

func (cf *File) lookup(path string) (Overrides, bool) {
	if o, ok := cf.Files[path]; ok {
		return o, true
	}
	base := filepath.Base(path)
	if o, ok := cf.Files[base]; ok {
		return o, true
	}

	patterns := make([]string, 0, len(cf.Files))
	for k := range cf.Files {
		patterns = append(patterns, k)
	}
	slices.Sort(patterns)
	for _, p := range patterns {
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return cf.Files[p], true
		}
	}
	return Overrides{}, false
}

func merge(base, o Overrides) Overrides {
	if o.CutPoint != 0 {
		base.CutPoint = o.CutPoint
	}
	if o.FilterWindow != 0 {
		base.FilterWindow = o.FilterWindow
	}
	if o.BackgroundModel != "" {
		base.BackgroundModel = o.BackgroundModel
	}
	if o.BackgroundCoef != 0 {
		base.BackgroundCoef = o.BackgroundCoef
	}
	if o.Height != 0 {
		base.Height = o.Height
	}
	if o.Prominence != 0 {
		base.Prominence = o.Prominence
	}
	if o.Distance != 0 {
		base.Distance = o.Distance
	}
	if o.FitRange != 0 {
		base.FitRange = o.FitRange
	}
	if o.MaxFitFailures != 0 {
		base.MaxFitFailures = o.MaxFitFailures
	}
	return base
}

// StageKwargs converts the set fields to keyword arguments keyed by
// stage class, in the form pipeline definitions use.
func (o Overrides) StageKwargs() map[string]map[string]any {
	out := make(map[string]map[string]any)
	set := func(class, key string, v any) {
		if out[class] == nil {
			out[class] = make(map[string]any)
		}
		out[class][key] = v
	}

	if o.CutPoint != 0 {
		set(stage.NameCut, "cut_point", o.CutPoint)
	}
	if o.FilterWindow != 0 {
		set(stage.NameFilter, "window", o.FilterWindow)
	}
	if o.BackgroundModel != "" {
		set(stage.NameBackground, "model", o.BackgroundModel)
	}
	if o.BackgroundCoef != 0 {
		set(stage.NameBackground, "coef", o.BackgroundCoef)
	}
	if o.Height != 0 {
		set(stage.NameFindPeak, "height", o.Height)
	}
	if o.Prominence != 0 {
		set(stage.NameFindPeak, "prominence", o.Prominence)
	}
	if o.Distance != 0 {
		set(stage.NameFindPeak, "distance", o.Distance)
	}
	if o.FitRange != 0 {
		set(stage.NameProcessPeak, "fit_range", o.FitRange)
	}
	if o.MaxFitFailures != 0 {
		set(stage.NameProcessPeak, "max_fit_failures", o.MaxFitFailures)
	}
	return out
}
