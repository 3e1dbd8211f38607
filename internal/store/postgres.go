package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagelift/linksim/internal/graph"
)

// pgSchema mirrors the SQLite schema for shared-server deployments.
const pgSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	id         BIGINT NOT NULL,
	url        TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS edges (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	from_id    BIGINT NOT NULL,
	to_id      BIGINT NOT NULL,
	PRIMARY KEY (project_id, from_id, to_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	page_id        BIGINT NOT NULL,
	new_score      DOUBLE PRECISION NOT NULL,
	delta          DOUBLE PRECISION NOT NULL,
	percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, page_id)
);
`

// PostgresStore implements Store on a PostgreSQL pool for deployments
// where several processes share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateProject implements Store.
func (s *PostgresStore) CreateProject(ctx context.Context, name string) (Project, error) {
	p := Project{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// GetProject implements Store.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// ListProjects implements Store.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("listing projects: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// AddPages implements Store using the COPY protocol via a staging table.
func (s *PostgresStore) AddPages(ctx context.Context, projectID string, pages []graph.Page) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			CREATE TEMPORARY TABLE staged_pages
			(id BIGINT, url TEXT, type TEXT, category TEXT, score DOUBLE PRECISION)
			ON COMMIT DROP`)
		if err != nil {
			return fmt.Errorf("creating staging table: %w", err)
		}

		_, err = tx.CopyFrom(ctx, pgx.Identifier{"staged_pages"},
			[]string{"id", "url", "type", "category", "score"},
			pgx.CopyFromSlice(len(pages), func(i int) ([]any, error) {
				p := pages[i]
				return []any{p.ID, p.URL, p.Type, p.Category, p.Score}, nil
			}))
		if err != nil {
			return fmt.Errorf("copying pages: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pages (project_id, id, url, type, category, score)
			SELECT $1, id, url, type, category, score FROM staged_pages
			ON CONFLICT (project_id, id) DO UPDATE SET
				url = excluded.url,
				type = excluded.type,
				category = excluded.category,
				score = excluded.score`, projectID)
		if err != nil {
			return fmt.Errorf("merging pages: %w", err)
		}
		return nil
	})
}

// AddEdges implements Store.
func (s *PostgresStore) AddEdges(ctx context.Context, projectID string, edges []graph.Edge) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return copyEdges(ctx, tx, projectID, edges)
	})
}

// GetPages implements Store.
func (s *PostgresStore) GetPages(ctx context.Context, projectID string) ([]graph.Page, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, type, category, score FROM pages WHERE project_id = $1 ORDER BY id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("getting pages: %w", err)
	}
	defer rows.Close()

	var pages []graph.Page
	for rows.Next() {
		var p graph.Page
		if err := rows.Scan(&p.ID, &p.URL, &p.Type, &p.Category, &p.Score); err != nil {
			return nil, fmt.Errorf("getting pages: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetEdges implements Store.
func (s *PostgresStore) GetEdges(ctx context.Context, projectID string) ([]graph.Edge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_id, to_id FROM edges WHERE project_id = $1 ORDER BY from_id, to_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("getting edges: %w", err)
	}
	defer rows.Close()

	var edges []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, fmt.Errorf("getting edges: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ReplaceEdges implements Store.
func (s *PostgresStore) ReplaceEdges(ctx context.Context, projectID string, edges []graph.Edge) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM edges WHERE project_id = $1`, projectID); err != nil {
			return fmt.Errorf("clearing edges: %w", err)
		}
		return copyEdges(ctx, tx, projectID, edges)
	})
}

func copyEdges(ctx context.Context, tx pgx.Tx, projectID string, edges []graph.Edge) error {
	_, err := tx.Exec(ctx, `
		CREATE TEMPORARY TABLE staged_edges (from_id BIGINT, to_id BIGINT)
		ON COMMIT DROP`)
	if err != nil {
		return fmt.Errorf("creating staging table: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"staged_edges"},
		[]string{"from_id", "to_id"},
		pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
			return []any{edges[i].From, edges[i].To}, nil
		}))
	if err != nil {
		return fmt.Errorf("copying edges: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO edges (project_id, from_id, to_id)
		SELECT $1, from_id, to_id FROM staged_edges
		ON CONFLICT DO NOTHING`, projectID)
	if err != nil {
		return fmt.Errorf("merging edges: %w", err)
	}
	return nil
}

// BulkUpdateScores implements Store: scores are staged through a temporary
// table with COPY and applied in one UPDATE so the batch is atomic.
func (s *PostgresStore) BulkUpdateScores(ctx context.Context, projectID string, updates []ScoreUpdate) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			CREATE TEMPORARY TABLE score_updates (page_id BIGINT PRIMARY KEY, score DOUBLE PRECISION)
			ON COMMIT DROP`)
		if err != nil {
			return fmt.Errorf("creating staging table: %w", err)
		}

		_, err = tx.CopyFrom(ctx, pgx.Identifier{"score_updates"},
			[]string{"page_id", "score"},
			pgx.CopyFromSlice(len(updates), func(i int) ([]any, error) {
				return []any{updates[i].PageID, updates[i].Score}, nil
			}))
		if err != nil {
			return fmt.Errorf("copying score updates: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE pages SET score = u.score
			FROM score_updates u
			WHERE pages.project_id = $1 AND pages.id = u.page_id`, projectID)
		if err != nil {
			return fmt.Errorf("applying score updates: %w", err)
		}
		return nil
	})
}

// CreateRun implements Store.
func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, project_id, name, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.ProjectID, run.Name, run.Status, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// UpdateRunStatus implements Store.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		status, runErr, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun implements Store.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, name, status, error, created_at, updated_at
		FROM runs WHERE id = $1`, runID).
		Scan(&r.ID, &r.ProjectID, &r.Name, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("getting run: %w", err)
	}
	return r, nil
}

// SaveRunResults implements Store.
func (s *PostgresStore) SaveRunResults(ctx context.Context, runID string, results []RunResult) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"run_results"},
			[]string{"run_id", "page_id", "new_score", "delta", "percent_change"},
			pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
				r := results[i]
				return []any{runID, r.PageID, r.NewScore, r.Delta, r.PercentChange}, nil
			}))
		if err != nil {
			return fmt.Errorf("saving run results: %w", err)
		}
		return nil
	})
}

// GetRunResults implements Store.
func (s *PostgresStore) GetRunResults(ctx context.Context, runID string) ([]RunResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_id, new_score, delta, percent_change FROM run_results WHERE run_id = $1 ORDER BY page_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("getting run results: %w", err)
	}
	defer rows.Close()

	var results []RunResult
	for rows.Next() {
		var r RunResult
		if err := rows.Scan(&r.PageID, &r.NewScore, &r.Delta, &r.PercentChange); err != nil {
			return nil, fmt.Errorf("getting run results: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
