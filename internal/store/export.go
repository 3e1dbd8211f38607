package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pagelift/linksim/internal/graph"
)

// ExportPagesJSONL writes one JSON object per page.
func ExportPagesJSONL(w io.Writer, pages []graph.Page) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, p := range pages {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("exporting page %d: %w", p.ID, err)
		}
	}
	return bw.Flush()
}

// ExportEdgesJSONL writes one JSON object per edge.
func ExportEdgesJSONL(w io.Writer, edges []graph.Edge) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, e := range edges {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("exporting edge %d->%d: %w", e.From, e.To, err)
		}
	}
	return bw.Flush()
}

// ExportRunResultsJSONL writes one JSON object per run result.
func ExportRunResultsJSONL(w io.Writer, results []RunResult) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("exporting result for page %d: %w", r.PageID, err)
		}
	}
	return bw.Flush()
}

// ImportPagesJSONL reads one JSON page per line. Blank lines are skipped;
// a malformed line fails the import with its line number.
func ImportPagesJSONL(r io.Reader) ([]graph.Page, error) {
	var pages []graph.Page
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p graph.Page
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("importing pages: line %d: %w", line, err)
		}
		pages = append(pages, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("importing pages: %w", err)
	}
	return pages, nil
}

// ImportEdgesJSONL reads one JSON edge per line.
func ImportEdgesJSONL(r io.Reader) ([]graph.Edge, error) {
	var edges []graph.Edge
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e graph.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("importing edges: line %d: %w", line, err)
		}
		edges = append(edges, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("importing edges: %w", err)
	}
	return edges, nil
}
