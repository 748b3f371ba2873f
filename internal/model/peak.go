package model

import "fmt"

// PeakStatus records how a selected peak candidate was handled.
//
// Design decision: iota constants with String and text marshalling, so
// comparisons stay cheap while JSON reports and the database see names.
type PeakStatus int

const (
	// PeakFitted means both fitting passes converged and the Gaussian was
	// subtracted from the intensity.
	PeakFitted PeakStatus = iota

	// PeakFitFailed means a fit did not converge. The intensity was left
	// untouched and the index was still marked processed.
	PeakFitFailed
)

// String returns a human-readable representation of the status.
func (s PeakStatus) String() string {
	switch s {
	case PeakFitted:
		return "fitted"
	case PeakFitFailed:
		return "fit_failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PeakStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PeakStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fitted":
		*s = PeakFitted
	case "fit_failed":
		*s = PeakFitFailed
	default:
		return fmt.Errorf("unknown peak status %q", string(text))
	}
	return nil
}

// Peak is the accepted model of one extracted peak:
// Amplitude·exp(−((q−Q)/Sigma)²).
type Peak struct {
	// Index is the position of the peak maximum in the sample arrays.
	Index int `json:"index"`

	// Q is the scattering vector at Index.
	Q float64 `json:"q"`

	// Height is the intensity at Index when the peak was selected.
	Height float64 `json:"height"`

	// Amplitude and Sigma are the Gaussian parameters.
	Amplitude float64 `json:"amplitude"`
	Sigma     float64 `json:"sigma"`

	// AmplitudeErr and SigmaErr are one-standard-deviation estimates taken
	// from the fit covariance. Zero when unavailable.
	AmplitudeErr float64 `json:"amplitude_err"`
	SigmaErr     float64 `json:"sigma_err"`

	// ParabolaSigma is the width estimate from the first, parabolic pass.
	ParabolaSigma float64 `json:"parabola_sigma"`

	// Window is the adaptive half-width, in points, of the Gaussian pass.
	Window int `json:"window"`

	// Status tells whether the peak was fitted or skipped.
	Status PeakStatus `json:"status"`
}

// BackgroundFit records the background model subtracted from a sample.
type BackgroundFit struct {
	// Model is the background model name ("hyperbola" or "exponent").
	Model string `json:"model"`

	// A and B are the model parameters: B·q^(−A) or B·exp(A·q).
	A float64 `json:"a"`
	B float64 `json:"b"`

	// Coef is the fraction of the fitted background that was subtracted.
	Coef float64 `json:"coef"`
}
