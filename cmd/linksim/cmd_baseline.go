package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/graph"
	"github.com/pagelift/linksim/internal/solver"
	"github.com/pagelift/linksim/internal/store"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Compute and persist baseline scores for the current graph",
		Long: `Solve the unconstrained score distribution over the project's
current link graph and store the result as each page's score.

Subsequent runs measure their deltas against these scores.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			top, _ := cmd.Flags().GetInt("top")

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

			pages, err := e.store.GetPages(ctx, project.ID)
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				return fmt.Errorf("project %q has no pages, run 'linksim import' first", project.Name)
			}
			edges, err := e.store.GetEdges(ctx, project.ID)
			if err != nil {
				return err
			}
			snap, err := graph.NewSnapshot(pages, edges)
			if err != nil {
				return err
			}

			cfg := solver.DefaultConfig()
			cfg.Damping = e.cfg.Solver.Damping
			cfg.Tolerance = e.cfg.Solver.Tolerance
			cfg.MaxIterations = e.cfg.Solver.MaxIterations
			sv, err := solver.New(cfg, e.log)
			if err != nil {
				return err
			}

			result, err := sv.Baseline(ctx, snap, nil)
			if err != nil {
				return err
			}

			updates := make([]store.ScoreUpdate, 0, len(result.Scores))
			for id, score := range result.Scores {
				updates = append(updates, store.ScoreUpdate{PageID: id, Score: score})
			}
			if err := e.store.BulkUpdateScores(ctx, project.ID, updates); err != nil {
				return fmt.Errorf("persisting baseline scores: %w", err)
			}

			e.log.Info("baseline computed",
				"project_id", project.ID,
				"pages", len(pages),
				"iterations", result.Diagnostics.Iterations,
				"converged", result.Diagnostics.Converged)

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"status":      "baseline",
					"project":     project.Name,
					"pages":       len(pages),
					"diagnostics": result.Diagnostics,
				})
				return nil
			}

			fmt.Printf("Baseline for %q: %d pages, %d iterations (converged: %v)\n\n",
				project.Name, len(pages), result.Diagnostics.Iterations, result.Diagnostics.Converged)

			sort.Slice(pages, func(i, j int) bool {
				return result.Scores[pages[i].ID] > result.Scores[pages[j].ID]
			})
			if top > len(pages) {
				top = len(pages)
			}
			fmt.Printf("Top %d pages:\n", top)
			for _, p := range pages[:top] {
				fmt.Printf("  %.6f  %s\n", result.Scores[p.ID], p.URL)
			}
			return nil
		},
	}

	cmd.Flags().Int("top", 10, "Number of top pages to print")

	return cmd
}
