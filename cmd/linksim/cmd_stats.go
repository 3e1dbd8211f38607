package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/graph"
	"github.com/pagelift/linksim/internal/solver"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph topology statistics for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

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
			edges, err := e.store.GetEdges(ctx, project.ID)
			if err != nil {
				return err
			}
			snap, err := graph.NewSnapshot(pages, edges)
			if err != nil {
				return err
			}

			stats := graph.ComputeStats(snap)
			estimate := solver.EstimateSeconds(stats.NumNodes, stats.NumEdges, e.cfg.Solver.MaxIterations)

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"project":                 project.Name,
					"stats":                   stats,
					"estimated_solve_seconds": estimate,
				})
				return nil
			}

			fmt.Printf("Project %q:\n", project.Name)
			fmt.Printf("  Pages:   %d\n", stats.NumNodes)
			fmt.Printf("  Links:   %d\n", stats.NumEdges)
			fmt.Printf("  Density: %.6f\n", stats.Density)
			fmt.Printf("  Weakly connected components:   %d\n", stats.WeaklyConnectedComponents)
			fmt.Printf("  Strongly connected components: %d\n", stats.StronglyConnectedComponents)
			if stats.IsStronglyConnected {
				fmt.Println("  Every page can reach every other page.")
			}
			fmt.Printf("\nEstimated solve time: %.1fs\n", estimate)
			return nil
		},
	}
	return cmd
}
