package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/store"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import pages and links from JSONL files",
		Long: `Load a crawled page graph into the project.

Pages are upserted by ID, existing links are kept and duplicates ignored,
so import can be re-run as the crawl grows.

Example:
  linksim import --pages pages.jsonl --links links.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pagesPath, _ := cmd.Flags().GetString("pages")
			linksPath, _ := cmd.Flags().GetString("links")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if pagesPath == "" && linksPath == "" {
				return fmt.Errorf("nothing to import, specify --pages and/or --links")
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

			numPages, numEdges := 0, 0
			if pagesPath != "" {
				f, err := os.Open(pagesPath)
				if err != nil {
					return fmt.Errorf("opening pages file: %w", err)
				}
				pages, err := store.ImportPagesJSONL(f)
				f.Close()
				if err != nil {
					return err
				}
				if err := e.store.AddPages(ctx, project.ID, pages); err != nil {
					return fmt.Errorf("importing pages: %w", err)
				}
				numPages = len(pages)
			}

			if linksPath != "" {
				f, err := os.Open(linksPath)
				if err != nil {
					return fmt.Errorf("opening links file: %w", err)
				}
				edges, err := store.ImportEdgesJSONL(f)
				f.Close()
				if err != nil {
					return err
				}
				if err := e.store.AddEdges(ctx, project.ID, edges); err != nil {
					return fmt.Errorf("importing links: %w", err)
				}
				numEdges = len(edges)
			}

			e.log.Info("import complete", "project_id", project.ID, "pages", numPages, "links", numEdges)

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"status":  "imported",
					"project": project.Name,
					"pages":   numPages,
					"links":   numEdges,
				})
			} else {
				fmt.Printf("Imported %d pages and %d links into %q\n", numPages, numEdges, project.Name)
			}
			return nil
		},
	}

	cmd.Flags().String("pages", "", "Pages JSONL file")
	cmd.Flags().String("links", "", "Links JSONL file")

	return cmd
}
