package main

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/saxsflow/internal/config"
	"github.com/nao1215/saxsflow/internal/kernel"
	"github.com/spf13/cobra"
)

//go:embed templates/saxsflow.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new saxsflow configuration file",
		Long: `Initialize creates a new .saxsflow configuration file in the current directory.

The generated file includes:
- Default stage parameters (cut point, filter window, background model)
- Commented examples for per-file overrides
- Documentation for all available parameters

With --pipeline, a pipeline document describing the default analysis is
written instead. Edit it and pass it to 'saxsflow analyze --pipeline'.

Examples:
  # Create .saxsflow in current directory
  saxsflow init

  # Create config file at a specific path
  saxsflow init -o myconfig.yaml

  # Write the default pipeline document
  saxsflow init --pipeline -o pipeline.yaml

  # Force overwrite existing file
  saxsflow init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing file")
	cmd.Flags().BoolP("pipeline", "p", false,
		"Write the default pipeline document instead of the configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	pipelineDoc, err := cmd.Flags().GetBool("pipeline")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	var content []byte
	if pipelineDoc {
		content, err = kernel.MarshalDocument(kernel.DefaultKernel{}.Define())
		if err != nil {
			return err
		}
	} else {
		content, err = configTemplate.ReadFile("templates/saxsflow.yaml")
		if err != nil {
			return fmt.Errorf("failed to read config template: %w", err)
		}
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	printInitHint(cmd.OutOrStdout(), outputPath, pipelineDoc)
	return nil
}

func printInitHint(w io.Writer, path string, pipelineDoc bool) {
	if pipelineDoc {
		fmt.Fprintf(w, "Created pipeline document: %s\n", path)
		fmt.Fprintf(w, "\nRun it with: saxsflow analyze --pipeline %s <curve-file>\n", path)
		return
	}
	fmt.Fprintf(w, "Created configuration file: %s\n", path)
	fmt.Fprintln(w, "\nEdit this file to tune the analysis, for example:")
	fmt.Fprintln(w, "  - The number of dropped low-q points")
	fmt.Fprintln(w, "  - The background model and subtracted fraction")
	fmt.Fprintln(w, "  - Peak search thresholds per file")
}
