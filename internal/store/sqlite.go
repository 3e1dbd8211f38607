package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pagelift/linksim/internal/graph"
)

// SQLiteStore implements Store on a SQLite database under
// <projectRoot>/.linksim/linksim.db.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the database for projectRoot.
func NewSQLiteStore(projectRoot string) (*SQLiteStore, error) {
	dir := filepath.Join(projectRoot, ".linksim")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating .linksim directory: %w", err)
	}

	dbPath := filepath.Join(dir, "linksim.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if err := initSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.dbPath }

// CreateProject implements Store.
func (s *SQLiteStore) CreateProject(ctx context.Context, name string) (Project, error) {
	p := Project{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// GetProject implements Store.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// ListProjects implements Store.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
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

// AddPages implements Store. Pages with an existing id are replaced.
func (s *SQLiteStore) AddPages(ctx context.Context, projectID string, pages []graph.Page) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pages (project_id, id, url, type, category, score)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_id, id) DO UPDATE SET
				url = excluded.url,
				type = excluded.type,
				category = excluded.category,
				score = excluded.score`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range pages {
			if _, err := stmt.ExecContext(ctx, projectID, p.ID, p.URL, p.Type, p.Category, p.Score); err != nil {
				return fmt.Errorf("page %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// AddEdges implements Store. Duplicate edges are ignored.
func (s *SQLiteStore) AddEdges(ctx context.Context, projectID string, edges []graph.Edge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges (project_id, from_id, to_id)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, projectID, e.From, e.To); err != nil {
				return fmt.Errorf("edge %d->%d: %w", e.From, e.To, err)
			}
		}
		return nil
	})
}

// GetPages implements Store.
func (s *SQLiteStore) GetPages(ctx context.Context, projectID string) ([]graph.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, type, category, score FROM pages WHERE project_id = ? ORDER BY id`,
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
func (s *SQLiteStore) GetEdges(ctx context.Context, projectID string) ([]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id FROM edges WHERE project_id = ? ORDER BY from_id, to_id`,
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
func (s *SQLiteStore) ReplaceEdges(ctx context.Context, projectID string, edges []graph.Edge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE project_id = ?`, projectID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges (project_id, from_id, to_id)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, projectID, e.From, e.To); err != nil {
				return fmt.Errorf("edge %d->%d: %w", e.From, e.To, err)
			}
		}
		return nil
	})
}

// BulkUpdateScores implements Store. The whole batch applies in one
// transaction so a reader never sees mixed old and new scores.
func (s *SQLiteStore) BulkUpdateScores(ctx context.Context, projectID string, updates []ScoreUpdate) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE pages SET score = ? WHERE project_id = ? AND id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range updates {
			if _, err := stmt.ExecContext(ctx, u.Score, projectID, u.PageID); err != nil {
				return fmt.Errorf("page %d: %w", u.PageID, err)
			}
		}
		return nil
	})
}

// CreateRun implements Store. Missing id and timestamps are filled in; the
// status defaults to pending.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, project_id, name, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.Name, run.Status, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// UpdateRunStatus implements Store.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, runErr, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, status, error, created_at, updated_at
		FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.ProjectID, &r.Name, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("getting run: %w", err)
	}
	return r, nil
}

// SaveRunResults implements Store.
func (s *SQLiteStore) SaveRunResults(ctx context.Context, runID string, results []RunResult) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_results (run_id, page_id, new_score, delta, percent_change)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (run_id, page_id) DO UPDATE SET
				new_score = excluded.new_score,
				delta = excluded.delta,
				percent_change = excluded.percent_change`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, runID, r.PageID, r.NewScore, r.Delta, r.PercentChange); err != nil {
				return fmt.Errorf("result for page %d: %w", r.PageID, err)
			}
		}
		return nil
	})
}

// GetRunResults implements Store.
func (s *SQLiteStore) GetRunResults(ctx context.Context, runID string) ([]RunResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id, new_score, delta, percent_change FROM run_results WHERE run_id = ? ORDER BY page_id`,
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

// inTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
