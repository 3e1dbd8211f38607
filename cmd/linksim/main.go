package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "linksim",
		Short: "Internal link graph simulator",
		Long: `linksim models a website's internal link graph and simulates how
structural changes shift link equity between pages.

It imports a crawled page graph, applies declarative linking rules, and
solves a constrained score distribution so the impact of a change can be
measured before touching the live site.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("project", "", "Project name or ID (defaults to the only project)")

	// Add subcommands
	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newImportCmd(),
		newBaselineCmd(),
		newRunCmd(),
		newPreviewCmd(),
		newStatsCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
