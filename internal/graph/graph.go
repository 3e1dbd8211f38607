// Package graph holds the in-memory model of a project's page graph: pages,
// directed links between them, and the invariants a simulation relies on.
package graph

import "fmt"

// Page is a single page of a project's site.
type Page struct {
	ID       int64   `json:"id"`
	URL      string  `json:"url"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Score    float64 `json:"score"` // current importance score; 0 until a baseline solve
}

// Edge is a directed link between two pages.
type Edge struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Snapshot is the view of a project's pages and links a single run operates
// on. It is built once per run and not mutated afterwards; rule edits produce
// a new Snapshot via WithEdges.
type Snapshot struct {
	pages []Page
	edges []Edge

	byID    map[int64]int
	byURL   map[string]int
	edgeSet map[Edge]bool
}

// NewSnapshot builds a snapshot from pages and edges. Duplicate directed
// edges are collapsed, and edges referencing unknown pages or linking a page
// to itself are dropped.
func NewSnapshot(pages []Page, edges []Edge) (*Snapshot, error) {
	s := &Snapshot{
		pages:   make([]Page, len(pages)),
		byID:    make(map[int64]int, len(pages)),
		byURL:   make(map[string]int, len(pages)),
		edgeSet: make(map[Edge]bool, len(edges)),
	}
	copy(s.pages, pages)

	for i, p := range s.pages {
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate page id %d", p.ID)
		}
		s.byID[p.ID] = i
		s.byURL[p.URL] = i
	}

	s.edges = make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if _, ok := s.byID[e.From]; !ok {
			continue
		}
		if _, ok := s.byID[e.To]; !ok {
			continue
		}
		if s.edgeSet[e] {
			continue
		}
		s.edgeSet[e] = true
		s.edges = append(s.edges, e)
	}

	return s, nil
}

// WithEdges derives a new snapshot over the same pages with a replaced edge
// set. Used after applying a rule edit script.
func (s *Snapshot) WithEdges(edges []Edge) (*Snapshot, error) {
	return NewSnapshot(s.pages, edges)
}

// Pages returns the snapshot's pages. The returned slice must not be mutated.
func (s *Snapshot) Pages() []Page { return s.pages }

// Edges returns the snapshot's edges. The returned slice must not be mutated.
func (s *Snapshot) Edges() []Edge { return s.edges }

// NumPages returns the number of pages.
func (s *Snapshot) NumPages() int { return len(s.pages) }

// NumEdges returns the number of distinct directed edges.
func (s *Snapshot) NumEdges() int { return len(s.edges) }

// PageByID looks up a page by its identifier.
func (s *Snapshot) PageByID(id int64) (Page, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Page{}, false
	}
	return s.pages[i], true
}

// PageByURL looks up a page by exact URL.
func (s *Snapshot) PageByURL(url string) (Page, bool) {
	i, ok := s.byURL[url]
	if !ok {
		return Page{}, false
	}
	return s.pages[i], true
}

// HasEdge reports whether the directed edge is present.
func (s *Snapshot) HasEdge(e Edge) bool { return s.edgeSet[e] }
