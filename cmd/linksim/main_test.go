package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/config"
	"github.com/pagelift/linksim/internal/store"
)

// newTestRootCmd creates a root command with persistent flags for testing
// subcommands.
func newTestRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "linksim",
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("project", "", "Project name or ID")
	return rootCmd
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	rootCmd := newTestRootCmd()
	rootCmd.AddCommand(cmd)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&bytes.Buffer{})
	return rootCmd.Execute()
}

func TestNewVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	if cmd.Use != "version" {
		t.Errorf("Use = %q, want %q", cmd.Use, "version")
	}
}

func TestNewRunCmd(t *testing.T) {
	cmd := newRunCmd()
	if cmd.Use != "run" {
		t.Errorf("Use = %q, want %q", cmd.Use, "run")
	}
	if cmd.Flags().Lookup("scenario") == nil {
		t.Error("missing --scenario flag")
	}
	if cmd.Flags().Lookup("seed") == nil {
		t.Error("missing --seed flag")
	}
}

func TestNewImportCmd(t *testing.T) {
	cmd := newImportCmd()
	if cmd.Flags().Lookup("pages") == nil {
		t.Error("missing --pages flag")
	}
	if cmd.Flags().Lookup("links") == nil {
		t.Error("missing --links flag")
	}
}

func TestNewExportCmd(t *testing.T) {
	cmd := newExportCmd()
	for _, name := range []string{"kind", "run", "out"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
}

func TestInitCmdCreatesProject(t *testing.T) {
	tmpDir := t.TempDir()

	if err := runCommand(t, newInitCmd(), "init", "my-shop", "--root", tmpDir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".linksim", "config.yaml")); err != nil {
		t.Error("config.yaml not created")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".linksim", "linksim.db")); err != nil {
		t.Error("linksim.db not created")
	}

	st, err := store.NewSQLiteStore(tmpDir)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()
	projects, err := st.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "my-shop" {
		t.Errorf("projects = %+v, want one named my-shop", projects)
	}
}

func TestImportCmdRequiresInput(t *testing.T) {
	tmpDir := t.TempDir()
	if err := runCommand(t, newInitCmd(), "init", "--root", tmpDir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	err := runCommand(t, newImportCmd(), "import", "--root", tmpDir)
	if err == nil {
		t.Fatal("expected error with no input files")
	}
	if !strings.Contains(err.Error(), "nothing to import") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolveProjectAmbiguous(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if _, err := st.CreateProject(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateProject(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("project", "", "")
	if _, err := resolveProject(ctx, cmd, st); err == nil {
		t.Error("expected error with two projects and no --project flag")
	}

	cmd.Flags().Set("project", "b")
	p, err := resolveProject(ctx, cmd, st)
	if err != nil {
		t.Fatalf("resolveProject: %v", err)
	}
	if p.Name != "b" {
		t.Errorf("resolved %q, want b", p.Name)
	}
}

func TestFullWorkflow(t *testing.T) {
	tmpDir := t.TempDir()

	if err := runCommand(t, newInitCmd(), "init", "shop", "--root", tmpDir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	pagesPath := filepath.Join(tmpDir, "pages.jsonl")
	pages := `{"id":1,"url":"https://shop.test/","type":"homepage","category":""}
{"id":2,"url":"https://shop.test/shoes","type":"category","category":"shoes"}
{"id":3,"url":"https://shop.test/shoes/runner","type":"product","category":"shoes"}
{"id":4,"url":"https://shop.test/shoes/boot","type":"product","category":"shoes"}
`
	if err := os.WriteFile(pagesPath, []byte(pages), 0644); err != nil {
		t.Fatal(err)
	}
	linksPath := filepath.Join(tmpDir, "links.jsonl")
	links := `{"from":1,"to":2}
{"from":2,"to":3}
{"from":2,"to":4}
{"from":3,"to":1}
{"from":4,"to":1}
`
	if err := os.WriteFile(linksPath, []byte(links), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, newImportCmd(), "import",
		"--pages", pagesPath, "--links", linksPath, "--root", tmpDir); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if err := runCommand(t, newBaselineCmd(), "baseline", "--root", tmpDir); err != nil {
		t.Fatalf("baseline failed: %v", err)
	}

	// Baseline scores were persisted.
	st, err := store.NewSQLiteStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	projects, err := st.ListProjects(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stored, err := st.GetPages(context.Background(), projects[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	st.Close()
	for _, p := range stored {
		if p.Score == 0 {
			t.Errorf("page %d has no baseline score", p.ID)
		}
	}

	scenarioPath := filepath.Join(tmpDir, "scenario.yaml")
	scenario := `name: cross-link products
seed: 7
rules:
  - source_filter:
      types: [product]
    target_filter:
      types: [product]
    selection_method: category
    links_per_page: 2
    avoid_self_links: true
`
	if err := os.WriteFile(scenarioPath, []byte(scenario), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, newPreviewCmd(), "preview",
		"--scenario", scenarioPath, "--root", tmpDir); err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	if err := runCommand(t, newRunCmd(), "run",
		"--scenario", scenarioPath, "--root", tmpDir); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if err := runCommand(t, newStatsCmd(), "stats", "--root", tmpDir); err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	outPath := filepath.Join(tmpDir, "export.jsonl")
	if err := runCommand(t, newExportCmd(), "export",
		"--kind", "pages", "--out", outPath, "--root", tmpDir); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("exported %d pages, want 4", len(lines))
	}
	var exported map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &exported); err != nil {
		t.Fatalf("exported line is not JSON: %v", err)
	}
	if _, ok := exported["url"]; !ok {
		t.Error("exported page has no url field")
	}
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Backend = "memory"
	st, err := openStore(ctx, cfg, t.TempDir())
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Errorf("got %T, want *store.MemoryStore", st)
	}
	st.Close()

	cfg = config.Default()
	tmpDir := t.TempDir()
	st, err = openStore(ctx, cfg, tmpDir)
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	if _, ok := st.(*store.SQLiteStore); !ok {
		t.Errorf("got %T, want *store.SQLiteStore", st)
	}
	st.Close()
}

func TestNewScorerDisabled(t *testing.T) {
	e := &env{cfg: config.Default()}
	if s := e.newScorer(); s != nil {
		t.Errorf("scorer = %v, want nil when semantic weighting is disabled", s)
	}

	e.cfg.Semantic.Enabled = true
	if s := e.newScorer(); s == nil {
		t.Error("scorer is nil with semantic weighting enabled")
	}
}
