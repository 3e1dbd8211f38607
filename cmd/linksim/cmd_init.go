package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pagelift/linksim/internal/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a simulation project in the current directory",
		Long: `Create the .linksim directory, write a default config.yaml if none
exists, and register a project in the store.

Example:
  linksim init my-shop`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			name := "default"
			if len(args) == 1 {
				name = args[0]
			}

			linksimDir := filepath.Join(root, ".linksim")
			if err := os.MkdirAll(linksimDir, 0755); err != nil {
				return fmt.Errorf("failed to create .linksim directory: %w", err)
			}

			configPath := filepath.Join(linksimDir, "config.yaml")
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				data, err := yaml.Marshal(config.Default())
				if err != nil {
					return fmt.Errorf("failed to render default config: %w", err)
				}
				if err := os.WriteFile(configPath, data, 0644); err != nil {
					return fmt.Errorf("failed to create config.yaml: %w", err)
				}
			}

			ctx, cancel := commandContext()
			defer cancel()

			e, err := setupEnv(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			project, err := e.store.CreateProject(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to create project: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"status":     "initialized",
					"path":       linksimDir,
					"project_id": project.ID,
					"project":    project.Name,
				})
			} else {
				fmt.Printf("Initialized .linksim/ in %s\n", root)
				fmt.Printf("Created project %q (%s)\n", project.Name, project.ID)
				fmt.Println("\nNext: import a crawled graph with 'linksim import'.")
			}
			return nil
		},
	}
	return cmd
}
