package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/simulation"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what a scenario's rules would change, without solving",
		Long: `Apply a scenario's linking rules against the project graph and show
a sample of the links that would be added or removed. Nothing is
persisted and no scores are computed.

Example:
  linksim preview --scenario scenario.yaml --count 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			count, _ := cmd.Flags().GetInt("count")
			jsonOut, _ := cmd.Flags().GetBool("json")

			scenario, err := simulation.LoadScenario(scenarioPath)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			e, err := setupEnv(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			project, err := resolveProject(ctx, cmd, e.store)
			if err != nil {
				return err
			}
			orch, err := e.newOrchestrator()
			if err != nil {
				return err
			}

			preview, err := orch.PreviewRules(ctx, project.ID, scenario, count)
			if err != nil {
				return err
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(preview)
				return nil
			}

			fmt.Printf("Scenario %q: %d rules\n", scenario.Name, preview.RulesApplied)
			fmt.Printf("Would add %d links, remove %d links\n\n", preview.TotalNewLinks, preview.RemovedLinks)

			if len(preview.SampleLinks) == 0 {
				fmt.Println("No new links.")
				return nil
			}
			fmt.Println("Sample of new links:")
			for _, l := range preview.SampleLinks {
				fmt.Printf("  %s -> %s [%s]\n", l.FromURL, l.ToURL, l.Position)
			}
			if preview.Truncated {
				fmt.Printf("  ... and %d more\n", preview.TotalNewLinks-len(preview.SampleLinks))
			}
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "Scenario YAML file (required)")
	cmd.Flags().Int("count", 20, "Maximum sample links to show")
	cmd.MarkFlagRequired("scenario")

	return cmd
}
