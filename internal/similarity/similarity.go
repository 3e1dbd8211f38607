// Package similarity supplies pairwise page relevance scores to the weight
// blender. The embedding model itself lives outside this system; this
// package defines the collaborator interface plus a dependency-free local
// scorer, a remote client, and caching wrappers.
package similarity

import (
	"context"
	"strings"
)

// PagePair identifies an ordered pair of pages to score.
type PagePair struct {
	A int64
	B int64
}

// Scorer computes similarity scores in [0, 1] for page pairs. Batched so
// implementations can amortize network or model costs.
type Scorer interface {
	// Name identifies the scorer, used in cache keys.
	Name() string
	// Similarity scores each requested pair. Pages not present in the
	// pages slice score 0. A missing map entry is treated as 0 by callers.
	Similarity(ctx context.Context, pages []Page, pairs []PagePair) (map[PagePair]float64, error)
}

// Page carries the fields a scorer may inspect. Kept separate from the
// graph package so scorers do not depend on graph internals.
type Page struct {
	ID       int64
	URL      string
	Type     string
	Category string
}

// TokenScorer is the local fallback scorer: Jaccard similarity over tokens
// drawn from a page's URL path, type, and category. Deterministic and
// cheap; used when no embedding service is configured.
type TokenScorer struct{}

// Name implements Scorer.
func (TokenScorer) Name() string { return "token" }

// Similarity implements Scorer.
func (TokenScorer) Similarity(ctx context.Context, pages []Page, pairs []PagePair) (map[PagePair]float64, error) {
	tokens := make(map[int64]map[string]bool, len(pages))
	for _, p := range pages {
		tokens[p.ID] = tokenize(p)
	}

	out := make(map[PagePair]float64, len(pairs))
	for _, pair := range pairs {
		a, okA := tokens[pair.A]
		b, okB := tokens[pair.B]
		if !okA || !okB {
			out[pair] = 0
			continue
		}
		out[pair] = jaccard(a, b)
	}
	return out, nil
}

// tokenize splits a page's URL path, type, and category into a lowercase
// token set. The host is dropped so similarity comes from the path.
func tokenize(p Page) map[string]bool {
	set := make(map[string]bool)

	raw := p.URL
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	} else {
		raw = ""
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '-' || r == '_' || r == '.' || r == '?' || r == '=' || r == '&'
	})
	fields = append(fields, strings.Fields(p.Type)...)
	fields = append(fields, strings.FieldsFunc(p.Category, func(r rune) bool {
		return r == '/' || r == '-' || r == '_' || r == ' '
	})...)

	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			set[f] = true
		}
	}
	return set
}

// jaccard computes intersection over union of two token sets. Two empty
// sets score 1, one empty set scores 0.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
