package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for saxsflow.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saxsflow",
		Short: "Peak extraction pipeline for SAXS curves",
		Long: `saxsflow analyses small-angle X-ray scattering (SAXS) curves.

Each curve runs through a pipeline of stages: the low-q region is cut,
the intensity is smoothed, a background model is fitted and subtracted,
and Bragg peaks are then found and fitted one at a time until no
candidate is left.

Results are printed as a report and stored in a local run history.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
