package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/store"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export pages, links, or run results as JSONL",
		Long: `Write project data as JSONL, one record per line, to stdout or
--out. Run results require --run.

Examples:
  linksim export --kind pages --out pages.jsonl
  linksim export --kind results --run <run-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			runID, _ := cmd.Flags().GetString("run")
			outPath, _ := cmd.Flags().GetString("out")

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

			var w io.Writer = os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			switch kind {
			case "pages":
				pages, err := e.store.GetPages(ctx, project.ID)
				if err != nil {
					return err
				}
				return store.ExportPagesJSONL(w, pages)
			case "links":
				edges, err := e.store.GetEdges(ctx, project.ID)
				if err != nil {
					return err
				}
				return store.ExportEdgesJSONL(w, edges)
			case "results":
				if runID == "" {
					return fmt.Errorf("--run is required for --kind results")
				}
				results, err := e.store.GetRunResults(ctx, runID)
				if err != nil {
					return err
				}
				return store.ExportRunResultsJSONL(w, results)
			default:
				return fmt.Errorf("unknown export kind %q (pages, links, results)", kind)
			}
		},
	}

	cmd.Flags().String("kind", "pages", "What to export: pages, links, or results")
	cmd.Flags().String("run", "", "Run ID (required for results)")
	cmd.Flags().String("out", "", "Output file (default stdout)")

	return cmd
}
