package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "saxsflow"

	// DefaultTimeout bounds the analysis of a single file. A run that
	// saturates its insertion limit still finishes well within it.
	DefaultTimeout = 60 * time.Second

	// DefaultConcurrency is the number of files analysed in parallel.
	// Each file gets its own pipeline; nothing is shared between runs.
	DefaultConcurrency = 4

	// DefaultMaxInsertions is the number of stage requests the scheduler
	// approves per run before it saturates.
	DefaultMaxInsertions = 64
)

// Config holds all configuration options for saxsflow.
// It is populated from CLI flags and passed down explicitly.
//
// Design decision: a single flat struct, as the number of options is
// small. Stage parameters live in the pipeline document or in the
// .saxsflow file, not here.
type Config struct {
	// Inputs are the curve files to analyse.
	Inputs []string

	// PipelinePath is a YAML pipeline document. When empty the default
	// kernel (cut, filter, background, peak extraction) is used.
	PipelinePath string

	// CutPoint overrides the number of leading points the cut stage drops.
	// Zero keeps the pipeline's value.
	CutPoint int

	// MaxInsertions is the scheduler's saturation limit. It always applies
	// to the default pipeline; a pipeline document keeps its own insertion
	// policy unless MaxInsertionsSet is true.
	MaxInsertions int

	// MaxInsertionsSet records that MaxInsertions was given explicitly.
	MaxInsertionsSet bool

	// Timeout bounds the analysis of one file.
	Timeout time.Duration

	// Concurrency is the number of files analysed in parallel.
	Concurrency int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file. When empty,
	// .saxsflow is searched for in the current and home directories.
	ConfigFilePath string

	// FileConfigs holds the stage overrides loaded from the config file.
	FileConfigs *File

	// JSONReport selects the JSON report. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report.
	MarkdownReport bool

	// ReportFile redirects the report from stdout to a file.
	ReportFile string

	// PlotDir, when set, receives one PNG plot per analysed file.
	PlotDir string

	// DBDir is the directory of the SQLite run store.
	// Defaults to the XDG data directory (~/.local/share/saxsflow on Linux).
	DBDir string

	// SaveToDB stores every result in the run store.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxInsertions: DefaultMaxInsertions,
		Timeout:       DefaultTimeout,
		Concurrency:   DefaultConcurrency,
		DBDir:         XDGDataDir(),
		SaveToDB:      true,
	}
}

// XDGDataDir returns the XDG data directory for saxsflow.
// On Linux: ~/.local/share/saxsflow
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for saxsflow.
// On Linux: ~/.config/saxsflow
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for saxsflow.
// On Linux: ~/.cache/saxsflow
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return ErrNoInput
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CutPoint < 0 {
		return ErrInvalidCutPoint
	}
	if c.MaxInsertions < 0 {
		return ErrInvalidMaxInsertions
	}
	return nil
}
