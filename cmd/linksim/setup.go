package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pagelift/linksim/internal/config"
	"github.com/pagelift/linksim/internal/logging"
	"github.com/pagelift/linksim/internal/similarity"
	"github.com/pagelift/linksim/internal/simulation"
	"github.com/pagelift/linksim/internal/solver"
	"github.com/pagelift/linksim/internal/store"
	"github.com/pagelift/linksim/internal/weights"
)

// env is the assembled runtime of one CLI invocation: config, logger,
// store and orchestrator, built from the project root's .linksim dir.
type env struct {
	root   string
	cfg    *config.Config
	log    *slog.Logger
	store  store.Store
	tracer *logging.RunTracer
}

// setupEnv loads .env and config for the given root and opens the
// configured store. Callers must Close the returned env.
func setupEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	root, _ := cmd.Flags().GetString("root")

	// .env is optional; it typically carries LINKSIM_DATABASE_URL.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg)
	st, err := openStore(ctx, cfg, root)
	if err != nil {
		return nil, err
	}

	return &env{
		root:   root,
		cfg:    cfg,
		log:    log,
		store:  st,
		tracer: logging.NewRunTracer(filepath.Join(root, ".linksim"), cfg.Logging.Level),
	}, nil
}

func (e *env) Close() {
	e.tracer.Close()
	if err := e.store.Close(); err != nil {
		e.log.Error("closing store", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Logging.File != "" {
		return logging.NewRotatingLogger(cfg.Logging.Level, cfg.Logging.File,
			cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	}
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

func openStore(ctx context.Context, cfg *config.Config, root string) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(root)
	}
}

// newOrchestrator wires the solver and edge-weight blender from config.
func (e *env) newOrchestrator() (*simulation.Orchestrator, error) {
	cfg := solver.DefaultConfig()
	cfg.Damping = e.cfg.Solver.Damping
	cfg.Tolerance = e.cfg.Solver.Tolerance
	cfg.MaxIterations = e.cfg.Solver.MaxIterations
	cfg.ProtectBudget = e.cfg.Solver.ProtectBudget
	cfg.BoostBudget = e.cfg.Solver.BoostBudget
	if e.cfg.Solver.Workers > 0 {
		cfg.Workers = e.cfg.Solver.Workers
	}

	sv, err := solver.New(cfg, e.log)
	if err != nil {
		return nil, err
	}
	blender := weights.New(e.newScorer(), e.cfg.Semantic.Threshold, e.log)
	return simulation.NewOrchestrator(e.store, sv, blender, e.log, e.tracer), nil
}

// newScorer builds the similarity scorer from the semantic config. A nil
// scorer selects legacy structural-only weighting.
func (e *env) newScorer() similarity.Scorer {
	sem := e.cfg.Semantic
	if !sem.Enabled {
		return nil
	}

	var scorer similarity.Scorer = similarity.TokenScorer{}
	if sem.Endpoint != "" {
		scorer = similarity.NewRemoteScorer(sem.Endpoint, sem.RequestsPerSecond, sem.Timeout)
	}

	var cache similarity.Cache = similarity.NewMemoryCache()
	if sem.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: sem.RedisAddr})
		cache = similarity.NewRedisCache(client, sem.RedisTTL)
	}
	return similarity.NewCachedScorer(scorer, cache)
}

// resolveProject finds the project named by --project, accepting either
// its name or its ID. With no flag and exactly one project, that project
// is used.
func resolveProject(ctx context.Context, cmd *cobra.Command, st store.Store) (store.Project, error) {
	name, _ := cmd.Flags().GetString("project")

	projects, err := st.ListProjects(ctx)
	if err != nil {
		return store.Project{}, err
	}
	if name == "" {
		switch len(projects) {
		case 0:
			return store.Project{}, fmt.Errorf("no projects found, run 'linksim init' first")
		case 1:
			return projects[0], nil
		default:
			return store.Project{}, fmt.Errorf("multiple projects exist, specify one with --project")
		}
	}

	for _, p := range projects {
		if p.ID == name || p.Name == name {
			return p, nil
		}
	}
	return store.Project{}, fmt.Errorf("project not found: %s", name)
}

// commandContext returns a context cancelled by SIGINT or SIGTERM so a
// long solve can be interrupted cleanly.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
