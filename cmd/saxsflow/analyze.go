package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/saxsflow/internal/config"
	"github.com/nao1215/saxsflow/internal/database"
	"github.com/nao1215/saxsflow/internal/kernel"
	saxslog "github.com/nao1215/saxsflow/internal/log"
	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/pipeline"
	"github.com/nao1215/saxsflow/internal/reader"
	"github.com/nao1215/saxsflow/internal/report"
	"github.com/nao1215/saxsflow/internal/stage"
	"github.com/spf13/cobra"
)

// errAnalysisFailed is returned after reporting when at least one file
// could not be analysed.
var errAnalysisFailed = errors.New("analysis failed")

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [curve-file]...",
		Short: "Extract peaks from SAXS curves",
		Long: `Analyze runs every curve file through the peak extraction pipeline.

A curve file holds two or three columns: q, intensity and optionally the
intensity uncertainty, separated by whitespace, commas or semicolons.
Lines starting with '#' and a leading header line are skipped.

The default pipeline:
- drops the first points of the low-q region (cut)
- smooths the intensity with a moving average (filter)
- fits and subtracts a hyperbolic background (background)
- finds the tallest remaining peak and fits it, until none are left

Files are analysed in parallel, each with its own pipeline. Every result
is stored in the run history unless --no-db is given.

Examples:
  # Analyse one curve
  saxsflow analyze lipid_a.dat

  # Analyse many curves, four at a time
  saxsflow analyze --batch 4 data/*.dat

  # Use a custom pipeline document
  saxsflow analyze --pipeline pipeline.yaml lipid_a.dat

  # Write a Markdown report and PNG plots
  saxsflow analyze --markdown -o report.md --plot plots/ data/*.dat

  # Output JSON without touching the run history
  saxsflow analyze --json --no-db lipid_a.dat

Configuration file (.saxsflow) example:
  defaults:
    cutPoint: 200
  files:
    "capillary_*.dat":
      backgroundModel: exponent
      height: 0.5`,
		Args: cobra.ArbitraryArgs,
		RunE: runAnalyzeCmd,
	}

	// Pipeline flags
	cmd.Flags().StringP("pipeline", "p", "",
		"Pipeline document (default: built-in cut, filter, background and peak pipeline)")
	cmd.Flags().IntP("cut-point", "C", 0,
		"Number of leading points to drop (overrides pipeline and config file)")
	cmd.Flags().IntP("max-insertions", "n", config.DefaultMaxInsertions,
		"Number of stage requests approved per run before the scheduler saturates")

	// Execution flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Time limit for the analysis of one file")
	cmd.Flags().IntP("batch", "b", config.DefaultConcurrency,
		"Number of files analysed concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .saxsflow in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().StringP("plot", "P", "",
		"Write one PNG plot per curve into this directory")

	// History flags
	cmd.Flags().Bool("no-db", false,
		"Do not store results in the run history")

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := saxslog.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runAnalyze(ctx, cfg, cmd.OutOrStdout(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	cfg.PipelinePath, err = cmd.Flags().GetString("pipeline")
	if err != nil {
		return nil, err
	}

	cfg.CutPoint, err = cmd.Flags().GetInt("cut-point")
	if err != nil {
		return nil, err
	}

	cfg.MaxInsertions, err = cmd.Flags().GetInt("max-insertions")
	if err != nil {
		return nil, err
	}
	cfg.MaxInsertionsSet = cmd.Flags().Changed("max-insertions")

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.Concurrency, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly named config file must exist; otherwise a missing
	// file just means no overrides.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.FileConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.FileConfigs = &config.File{
			Files: make(map[string]config.Overrides),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.PlotDir, err = cmd.Flags().GetString("plot")
	if err != nil {
		return nil, err
	}

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	cfg.Inputs = args

	return cfg, nil
}

// runAnalyze reads every input, analyses the curves and writes the report.
func runAnalyze(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	logger.Info("starting analysis",
		"inputs", len(cfg.Inputs),
		"pipeline", cfg.PipelinePath,
		"concurrency", cfg.Concurrency,
		"saveToDB", cfg.SaveToDB,
	)

	base, err := loadKernel(cfg)
	if err != nil {
		return err
	}

	samples := make([]*model.Sample, 0, len(cfg.Inputs))
	for _, path := range cfg.Inputs {
		s, err := reader.ReadFile(path)
		if err != nil {
			return err
		}
		summary := reader.Summarize(s)
		logger.Debug("curve loaded",
			"source", path,
			"points", summary.Points,
			"qMin", summary.QMin,
			"qMax", summary.QMax,
			"hasError", summary.HasError,
		)
		samples = append(samples, s)
	}

	var db *database.RunDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	factory := newPipelineFactory(cfg, base, logger)

	// Compile once up front so a broken definition fails before any run.
	if _, err := factory(samples[0]); err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}

	bp := pipeline.NewBatchProcessor(
		factory,
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithTimeout(cfg.Timeout),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	results, runErr := bp.ProcessBatch(ctx, samples)
	logger.Info("analysis finished", "elapsed", time.Since(startTime).Round(time.Millisecond))

	// Results are kept even when the run was interrupted.
	storeCtx := context.WithoutCancel(ctx)
	for i, r := range results {
		if r == nil {
			continue
		}
		if cfg.PlotDir != "" {
			if err := savePlot(cfg.PlotDir, samples[i], r); err != nil {
				logger.Error("plot failed", "source", r.Source, "error", err)
			}
		}
		if err := saveResult(storeCtx, db, r, logger); err != nil {
			logger.Error("failed to save result", "source", r.Source, "error", err)
		}
	}

	if err := outputReport(cfg, stdout, results); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	if failed := report.Summarize(results).Failed; failed > 0 {
		return fmt.Errorf("%w: %d of %d files", errAnalysisFailed, failed, len(results))
	}
	return nil
}

// loadKernel returns the pipeline document named in cfg or the default
// kernel.
func loadKernel(cfg *config.Config) (kernel.Kernel, error) {
	if cfg.PipelinePath == "" {
		return kernel.DefaultKernel{}, nil
	}
	return kernel.LoadDocument(cfg.PipelinePath)
}

// newPipelineFactory compiles one pipeline per sample, with the stage
// overrides of the config file and the command line applied.
func newPipelineFactory(cfg *config.Config, base kernel.Kernel, logger *slog.Logger) pipeline.PipelineFactory {
	opts := []kernel.CompilerOption{kernel.WithLogger(logger)}
	if cfg.PipelinePath == "" || cfg.MaxInsertionsSet {
		opts = append(opts, kernel.WithInsertion(pipeline.Saturation(cfg.MaxInsertions)))
	}
	compiler := kernel.NewCompiler(opts...)

	return func(s *model.Sample) (*pipeline.Pipeline, error) {
		return compiler.Build(kernel.Overridden(base, stageKwargs(cfg, s.Source())))
	}
}

// stageKwargs collects the overrides for the curve at path. The
// --cut-point flag wins over the config file.
func stageKwargs(cfg *config.Config, path string) map[string]map[string]any {
	var kwargs map[string]map[string]any
	if cfg.FileConfigs != nil {
		kwargs = cfg.FileConfigs.GetFileConfig(path).StageKwargs()
	} else {
		kwargs = make(map[string]map[string]any)
	}
	if cfg.CutPoint > 0 {
		if kwargs[stage.NameCut] == nil {
			kwargs[stage.NameCut] = make(map[string]any)
		}
		kwargs[stage.NameCut]["cut_point"] = cfg.CutPoint
	}
	return kwargs
}

// savePlot writes the PNG plot of one result into dir.
func savePlot(dir string, s *model.Sample, r *model.Result) error {
	base := filepath.Base(r.Source)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
	return report.NewPlotWriter().Save(filepath.Join(dir, name), s, r)
}

// outputReport writes the results in the requested format. A single
// result gets a single report; several get a batch report.
func outputReport(cfg *config.Config, stdout io.Writer, results []*model.Result) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport && len(results) > 1:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output,
			report.WithShowEmpty(true),
			report.WithVerbose(cfg.Verbose),
		)
	}

	if len(results) == 1 && results[0] != nil {
		_, err := writer.Write(results[0])
		return err
	}
	_, err := writer.WriteBatch(results)
	return err
}

// saveResult stores the result in the run history. If db is nil, this
// function is a no-op.
func saveResult(ctx context.Context, db *database.RunDB, r *model.Result, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	if r.Fingerprint != "" {
		previous, err := db.FindByFingerprint(ctx, r.Fingerprint)
		if err != nil {
			return err
		}
		if len(previous) > 0 {
			logger.Info("curve analysed before",
				"source", r.Source,
				"runs", len(previous),
				"lastSource", previous[0].Source,
			)
		}
	}

	if err := db.SaveResult(ctx, r); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	logger.Info("result saved to database", "source", r.Source, "runID", r.RunID)
	return nil
}
