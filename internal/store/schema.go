package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the SQLite schema. Statements are idempotent so opening an
// existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	id         INTEGER NOT NULL,
	url        TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	score      REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, id)
);

CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(project_id, url);

CREATE TABLE IF NOT EXISTS edges (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	from_id    INTEGER NOT NULL,
	to_id      INTEGER NOT NULL,
	PRIMARY KEY (project_id, from_id, to_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	page_id        INTEGER NOT NULL,
	new_score      REAL NOT NULL,
	delta          REAL NOT NULL,
	percent_change REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, page_id)
);
`

// initSchema creates all tables if they do not exist yet.
func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}
