// Package weights assigns a scalar weight to every edge of a snapshot by
// blending the link's structural position with an externally supplied
// semantic similarity score.
package weights

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagelift/linksim/internal/constants"
	"github.com/pagelift/linksim/internal/graph"
	"github.com/pagelift/linksim/internal/similarity"
)

// Position names the on-page zone a link appears in. Links higher on the
// page carry more weight.
type Position string

const (
	PositionHeader        Position = "header"
	PositionContentTop    Position = "content_top"
	PositionContent       Position = "content"
	PositionContentBottom Position = "content_bottom"
	PositionSidebar       Position = "sidebar"
	PositionFooter        Position = "footer"
)

var positionWeights = map[Position]float64{
	PositionHeader:        1.0,
	PositionContentTop:    0.95,
	PositionContent:       0.80,
	PositionContentBottom: 0.60,
	PositionSidebar:       0.40,
	PositionFooter:        0.20,
}

// defaultEdgeWeight is the structural weight of edges with no recorded
// position, i.e. links that existed before the run.
const defaultEdgeWeight = 1.0

// PositionWeight returns the structural weight for a position. Unknown or
// empty positions weigh as content links.
func PositionWeight(p Position) float64 {
	if w, ok := positionWeights[p]; ok {
		return w
	}
	return positionWeights[PositionContent]
}

// Blender computes the final per-edge weights for a solve.
type Blender struct {
	scorer    similarity.Scorer
	threshold float64
	log       *slog.Logger
}

// New creates a blender. A nil scorer selects legacy uniform weighting:
// edges keep their structural position weight unmodified. A threshold <= 0
// falls back to the default.
func New(scorer similarity.Scorer, threshold float64, log *slog.Logger) *Blender {
	if threshold <= 0 {
		threshold = constants.DefaultSemanticThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Blender{scorer: scorer, threshold: threshold, log: log}
}

// Legacy returns a copy of the blender with semantic scoring disabled,
// so one run can opt back into structural-only weights.
func (b *Blender) Legacy() *Blender {
	return &Blender{threshold: b.threshold, log: b.log}
}

// WithThreshold returns a copy of the blender using a different
// similarity threshold. A threshold <= 0 keeps the current one.
func (b *Blender) WithThreshold(threshold float64) *Blender {
	if threshold <= 0 {
		return b
	}
	return &Blender{scorer: b.scorer, threshold: threshold, log: b.log}
}

// Blend returns a weight for every edge of the snapshot. positions carries
// the zone of edges produced by rules in this run; edges absent from it
// default to weight 1.0. With semantic scoring enabled the final weight is
// (position + semantic) / 2, where the semantic term is zero below the
// threshold.
func (b *Blender) Blend(ctx context.Context, snap *graph.Snapshot, positions map[graph.Edge]Position) (map[graph.Edge]float64, error) {
	edges := snap.Edges()
	out := make(map[graph.Edge]float64, len(edges))

	for _, e := range edges {
		if pos, ok := positions[e]; ok {
			out[e] = PositionWeight(pos)
		} else {
			out[e] = defaultEdgeWeight
		}
	}

	if b.scorer == nil {
		b.log.Debug("semantic weighting disabled, using structural weights", "edges", len(edges))
		return out, nil
	}

	pairs := make([]similarity.PagePair, 0, len(edges))
	for _, e := range edges {
		pairs = append(pairs, similarity.PagePair{A: e.From, B: e.To})
	}

	simPages := make([]similarity.Page, 0, snap.NumPages())
	for _, p := range snap.Pages() {
		simPages = append(simPages, similarity.Page{ID: p.ID, URL: p.URL, Type: p.Type, Category: p.Category})
	}

	scores, err := b.scorer.Similarity(ctx, simPages, pairs)
	if err != nil {
		return nil, fmt.Errorf("blending edge weights: %w", err)
	}

	relevant := 0
	for _, e := range edges {
		s := scores[similarity.PagePair{A: e.From, B: e.To}]
		if s < b.threshold {
			s = 0
		} else {
			relevant++
		}
		out[e] = (out[e] + s) / 2
	}

	b.log.Debug("blended semantic weights",
		"edges", len(edges), "relevant", relevant, "threshold", b.threshold)
	return out, nil
}
