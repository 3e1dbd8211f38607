// Package store provides project persistence: pages, edges, runs and run
// results, with SQLite, Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pagelift/linksim/internal/graph"
)

// ErrNotFound reports a lookup for a project or run that does not exist.
var ErrNotFound = errors.New("not found")

// Project is a site whose link graph is being simulated.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStatus tracks a simulation run's lifecycle. Transitions are
// pending -> running -> completed|failed; both end states are terminal.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one simulation run record.
type Run struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunResult is one page's outcome in a completed run. PercentChange is
// the delta relative to the page's pre-run score, zero for previously
// unscored pages.
type RunResult struct {
	PageID        int64   `json:"page_id"`
	NewScore      float64 `json:"new_score"`
	Delta         float64 `json:"delta"`
	PercentChange float64 `json:"percent_change"`
}

// ScoreUpdate sets one page's persisted score.
type ScoreUpdate struct {
	PageID int64
	Score  float64
}

// Store persists projects and their graphs. Each call is atomic: a reader
// never observes a partially applied batch.
type Store interface {
	CreateProject(ctx context.Context, name string) (Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)

	AddPages(ctx context.Context, projectID string, pages []graph.Page) error
	AddEdges(ctx context.Context, projectID string, edges []graph.Edge) error
	GetPages(ctx context.Context, projectID string) ([]graph.Page, error)
	GetEdges(ctx context.Context, projectID string) ([]graph.Edge, error)
	// ReplaceEdges swaps the project's whole edge set in one transaction.
	ReplaceEdges(ctx context.Context, projectID string, edges []graph.Edge) error

	// BulkUpdateScores applies all score updates as one atomic batch.
	BulkUpdateScores(ctx context.Context, projectID string, updates []ScoreUpdate) error

	CreateRun(ctx context.Context, run *Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, runErr string) error
	GetRun(ctx context.Context, runID string) (Run, error)
	SaveRunResults(ctx context.Context, runID string, results []RunResult) error
	GetRunResults(ctx context.Context, runID string) ([]RunResult, error)

	Close() error
}
