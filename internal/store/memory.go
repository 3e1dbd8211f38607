package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagelift/linksim/internal/graph"
)

// MemoryStore is an in-process Store for tests and previews.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]Project
	pages    map[string][]graph.Page
	edges    map[string][]graph.Edge
	runs     map[string]Run
	results  map[string][]RunResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]Project),
		pages:    make(map[string][]graph.Page),
		edges:    make(map[string][]graph.Edge),
		runs:     make(map[string]Run),
		results:  make(map[string][]RunResult),
	}
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// CreateProject implements Store.
func (m *MemoryStore) CreateProject(ctx context.Context, name string) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Project{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	m.projects[p.ID] = p
	return p, nil
}

// GetProject implements Store.
func (m *MemoryStore) GetProject(ctx context.Context, id string) (Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// ListProjects implements Store.
func (m *MemoryStore) ListProjects(ctx context.Context) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

// AddPages implements Store.
func (m *MemoryStore) AddPages(ctx context.Context, projectID string, pages []graph.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	existing := m.pages[projectID]
	index := make(map[int64]int, len(existing))
	for i, p := range existing {
		index[p.ID] = i
	}
	for _, p := range pages {
		if i, ok := index[p.ID]; ok {
			existing[i] = p
		} else {
			index[p.ID] = len(existing)
			existing = append(existing, p)
		}
	}
	m.pages[projectID] = existing
	return nil
}

// AddEdges implements Store.
func (m *MemoryStore) AddEdges(ctx context.Context, projectID string, edges []graph.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	seen := make(map[graph.Edge]bool, len(m.edges[projectID]))
	for _, e := range m.edges[projectID] {
		seen[e] = true
	}
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		m.edges[projectID] = append(m.edges[projectID], e)
	}
	return nil
}

// GetPages implements Store.
func (m *MemoryStore) GetPages(ctx context.Context, projectID string) ([]graph.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]graph.Page, len(m.pages[projectID]))
	copy(out, m.pages[projectID])
	return out, nil
}

// GetEdges implements Store.
func (m *MemoryStore) GetEdges(ctx context.Context, projectID string) ([]graph.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]graph.Edge, len(m.edges[projectID]))
	copy(out, m.edges[projectID])
	return out, nil
}

// ReplaceEdges implements Store.
func (m *MemoryStore) ReplaceEdges(ctx context.Context, projectID string, edges []graph.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	out := make([]graph.Edge, len(edges))
	copy(out, edges)
	m.edges[projectID] = out
	return nil
}

// BulkUpdateScores implements Store.
func (m *MemoryStore) BulkUpdateScores(ctx context.Context, projectID string, updates []ScoreUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := m.pages[projectID]
	index := make(map[int64]int, len(pages))
	for i, p := range pages {
		index[p.ID] = i
	}
	for _, u := range updates {
		if i, ok := index[u.PageID]; ok {
			pages[i].Score = u.Score
		}
	}
	return nil
}

// CreateRun implements Store.
func (m *MemoryStore) CreateRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[run.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", run.ProjectID, ErrNotFound)
	}
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
	m.runs[run.ID] = *run
	return nil
}

// UpdateRunStatus implements Store.
func (m *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, runErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	run.Status = status
	run.Error = runErr
	run.UpdatedAt = time.Now().UTC()
	m.runs[runID] = run
	return nil
}

// GetRun implements Store.
func (m *MemoryStore) GetRun(ctx context.Context, runID string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, nil
}

// SaveRunResults implements Store.
func (m *MemoryStore) SaveRunResults(ctx context.Context, runID string, results []RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	out := make([]RunResult, len(results))
	copy(out, results)
	m.results[runID] = out
	return nil
}

// GetRunResults implements Store.
func (m *MemoryStore) GetRunResults(ctx context.Context, runID string) ([]RunResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunResult, len(m.results[runID]))
	copy(out, m.results[runID])
	return out, nil
}
