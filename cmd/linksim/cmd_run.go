package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/metrics"
	"github.com/pagelift/linksim/internal/simulation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a scenario against the project graph",
		Long: `Apply a scenario's linking rules to the project graph, solve the
constrained score distribution, and persist the resulting scores and
edge set.

Example:
  linksim run --scenario scenario.yaml
  linksim run --scenario scenario.yaml --seed 42 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			seed, _ := cmd.Flags().GetInt64("seed")
			jsonOut, _ := cmd.Flags().GetBool("json")
			top, _ := cmd.Flags().GetInt("top")

			scenario, err := simulation.LoadScenario(scenarioPath)
			if err != nil {
				return err
			}
			if seed != 0 {
				scenario.Seed = seed
			}

			ctx, cancel := commandContext()
			defer cancel()

			e, err := setupEnv(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.cfg.Metrics.Enabled {
				go metrics.Expose(e.cfg.Metrics.Addr)
			}

			project, err := resolveProject(ctx, cmd, e.store)
			if err != nil {
				return err
			}
			orch, err := e.newOrchestrator()
			if err != nil {
				return err
			}

			summary, err := orch.Run(ctx, project.ID, scenario)
			if err != nil {
				if summary.RunID != "" {
					return fmt.Errorf("run %s failed: %w", summary.RunID, err)
				}
				return err
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(summary)
				return nil
			}

			fmt.Printf("Run %s completed in %s\n\n", summary.RunID, summary.Elapsed.Round(time.Millisecond))
			fmt.Printf("Links:  +%d added, -%d removed\n", summary.NewLinksCount, summary.RemovedLinks)
			fmt.Printf("Solver: %d iterations, converged: %v", summary.Diagnostics.Iterations, summary.Diagnostics.Converged)
			if summary.Diagnostics.BudgetsClamped {
				fmt.Printf(" (budgets clamped)")
			}
			fmt.Println()
			fmt.Printf("Budget: protect %.4f, boost %.4f\n",
				summary.Diagnostics.ProtectBudgetUsed, summary.Diagnostics.BoostBudgetUsed)
			fmt.Println()

			s := summary.Stats
			fmt.Printf("Score movement:\n")
			fmt.Printf("  gained: %d pages, lost: %d pages, unchanged: %d pages\n",
				s.PositiveDeltas, s.NegativeDeltas, s.ZeroDeltas)
			fmt.Printf("  max gain: %+.6f, max loss: %+.6f\n", s.MaxGain, s.MaxLoss)
			fmt.Printf("  total redistribution: %.6f\n", s.TotalRedistribution)

			printTopMovers(e, ctx, cmd, summary, top)
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "Scenario YAML file (required)")
	cmd.Flags().Int64("seed", 0, "Override the scenario's random seed")
	cmd.Flags().Int("top", 5, "Number of top movers to print")
	cmd.MarkFlagRequired("scenario")

	return cmd
}

// printTopMovers prints the largest per-page deltas of a completed run.
func printTopMovers(e *env, ctx context.Context, cmd *cobra.Command, summary simulation.RunSummary, top int) {
	project, err := resolveProject(ctx, cmd, e.store)
	if err != nil {
		return
	}
	results, err := e.store.GetRunResults(ctx, summary.RunID)
	if err != nil || len(results) == 0 {
		return
	}
	pages, err := e.store.GetPages(ctx, project.ID)
	if err != nil {
		return
	}
	urls := make(map[int64]string, len(pages))
	for _, p := range pages {
		urls[p.ID] = p.URL
	}

	sort.Slice(results, func(i, j int) bool {
		return math.Abs(results[i].Delta) > math.Abs(results[j].Delta)
	})
	if top > len(results) {
		top = len(results)
	}

	fmt.Printf("\nTop movers:\n")
	for _, r := range results[:top] {
		fmt.Printf("  %+.6f  %s\n", r.Delta, urls[r.PageID])
	}
}
