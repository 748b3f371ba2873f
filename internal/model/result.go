package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// RunStats summarises one scheduler run.
type RunStats struct {
	// Executed is the number of stage executions, initial stages included.
	Executed int `json:"executed"`

	// Approved and Rejected count insertion-policy decisions.
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`

	// Saturated is true when at least one request was rejected, meaning the
	// run may have stopped before the candidate set was exhausted.
	Saturated bool `json:"saturated"`
}

// Result is what a finished analysis hands to downstream consumers:
// report writers, the run store and the phase-classification step.
//
// Design decision: one flat, JSON-tagged struct, so the same value is
// written to reports and stored verbatim in the database.
type Result struct {
	// RunID identifies this analysis run.
	RunID string `json:"run_id"`

	// Source is the input the sample was read from.
	Source string `json:"source"`

	// Fingerprint identifies the raw input curve independently of its path.
	Fingerprint string `json:"fingerprint,omitempty"`

	// DateAnalyzed is when the run finished.
	DateAnalyzed time.Time `json:"date_analyzed"`

	// Points is the number of points left after the pipeline ran.
	Points int `json:"points"`

	// QMin and QMax bound the analysed q range.
	QMin float64 `json:"q_min"`
	QMax float64 `json:"q_max"`

	// Peaks are the extracted peaks in extraction order.
	Peaks []Peak `json:"peaks"`

	// FailedPeaks are indices whose fit did not converge.
	FailedPeaks []int `json:"failed_peaks,omitempty"`

	// Background is the subtracted background model, when one was fitted.
	Background *BackgroundFit `json:"background,omitempty"`

	// Trace lists executed stage names in order.
	Trace []string `json:"trace"`

	// Stats are the scheduler counters.
	Stats RunStats `json:"stats"`

	// Error holds the fatal error message, if the run aborted.
	Error string `json:"error,omitempty"`
}

// NewResult creates an empty Result for the given source with a fresh
// random run id.
func NewResult(source string) *Result {
	return &Result{
		RunID:        uuid.NewString(),
		Source:       source,
		DateAnalyzed: time.Now(),
		Peaks:        []Peak{},
		Trace:        []string{},
	}
}

// Fill copies the outcome stored on a final sample into the result.
func (r *Result) Fill(s *Sample) {
	if s == nil {
		return
	}
	r.Points = s.Len()
	if s.Len() > 0 {
		r.QMin = s.Q()[0]
		r.QMax = s.Q()[s.Len()-1]
	}
	r.Peaks = slices.Clone(s.Peaks())
	if r.Peaks == nil {
		r.Peaks = []Peak{}
	}
	r.FailedPeaks = slices.Clone(s.FailedPeaks())
	if fit, ok := s.BackgroundFit(); ok {
		r.Background = &fit
	}
	r.Trace = slices.Clone(s.Trace())
	if r.Trace == nil {
		r.Trace = []string{}
	}
	if stats, ok := s.Value(KeyStats); ok {
		if rs, ok := stats.(RunStats); ok {
			r.Stats = rs
		}
	}
	if r.Source == "" {
		r.Source = s.Source()
	}
}

// FittedPeaks returns only the peaks whose fit converged.
func (r *Result) FittedPeaks() []Peak {
	out := make([]Peak, 0, len(r.Peaks))
	for _, p := range r.Peaks {
		if p.Status == PeakFitted {
			out = append(out, p)
		}
	}
	return out
}

// CountByStatus returns how many peaks have the given status.
func (r *Result) CountByStatus(status PeakStatus) int {
	n := 0
	for _, p := range r.Peaks {
		if p.Status == status {
			n++
		}
	}
	return n
}

// HasPeaks reports whether any peak was selected during the run.
func (r *Result) HasPeaks() bool {
	return len(r.Peaks) > 0
}

// Failed reports whether the run aborted with a fatal error.
func (r *Result) Failed() bool {
	return r.Error != ""
}
