package solver

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pagelift/linksim/internal/graph"
)

// transition is the column-stochastic link matrix in inbound-list form:
// for each node, the list of sources linking to it together with the
// normalized probability of following that link.
type transition struct {
	n     int
	ids   []int64
	index map[int64]int

	// CSR-style inbound adjacency: inbound links of node i occupy
	// inSrc[inStart[i]:inStart[i+1]] and inProb[inStart[i]:inStart[i+1]].
	inStart []int
	inSrc   []int
	inProb  []float64

	// dangling lists nodes with zero out-weight; their mass follows the
	// teleport distribution instead of graph edges.
	dangling []int
}

// newTransition builds the transition structure from a snapshot and edge
// weights. Missing weights default to 1.0; non-positive weights drop the
// edge. An outflow cap c on a node scales its normalized outgoing
// probabilities by c and assigns the remaining 1-c as a self-loop.
func newTransition(snap *graph.Snapshot, weights map[graph.Edge]float64, caps map[int64]float64) *transition {
	pages := snap.Pages()
	n := len(pages)

	t := &transition{
		n:     n,
		ids:   make([]int64, n),
		index: make(map[int64]int, n),
	}
	for i, p := range pages {
		t.ids[i] = p.ID
		t.index[p.ID] = i
	}

	type outEdge struct {
		to     int
		weight float64
	}
	out := make([][]outEdge, n)
	outSum := make([]float64, n)

	for _, e := range snap.Edges() {
		from, ok := t.index[e.From]
		if !ok {
			continue
		}
		to, ok := t.index[e.To]
		if !ok {
			continue
		}
		w := 1.0
		if weights != nil {
			if ew, ok := weights[e]; ok {
				w = ew
			}
		}
		if w <= 0 {
			continue
		}
		out[from] = append(out[from], outEdge{to: to, weight: w})
		outSum[from] += w
	}

	// Normalize per source, apply outflow caps, and invert into inbound
	// lists.
	type inEdge struct {
		src  int
		prob float64
	}
	in := make([][]inEdge, n)

	for from := 0; from < n; from++ {
		if outSum[from] == 0 {
			t.dangling = append(t.dangling, from)
			continue
		}
		capFactor, capped := 0.0, false
		if caps != nil {
			if c, ok := caps[t.ids[from]]; ok && c > 0 && c < 1 {
				capFactor, capped = c, true
			}
		}
		for _, e := range out[from] {
			prob := e.weight / outSum[from]
			if capped {
				prob *= capFactor
			}
			in[e.to] = append(in[e.to], inEdge{src: from, prob: prob})
		}
		if capped {
			in[from] = append(in[from], inEdge{src: from, prob: 1 - capFactor})
		}
	}

	t.inStart = make([]int, n+1)
	total := 0
	for i := 0; i < n; i++ {
		t.inStart[i] = total
		total += len(in[i])
	}
	t.inStart[n] = total

	t.inSrc = make([]int, total)
	t.inProb = make([]float64, total)
	for i := 0; i < n; i++ {
		offset := t.inStart[i]
		for j, e := range in[i] {
			t.inSrc[offset+j] = e.src
			t.inProb[offset+j] = e.prob
		}
	}
	return t
}

// step computes dst = d*Mᵗp + (1-d)*teleport, fanning the per-node sums out
// across workers. Dangling mass follows the teleport distribution.
func (t *transition) step(ctx context.Context, dst, p, teleport []float64, damping float64, workers int) error {
	danglingMass := 0.0
	for _, i := range t.dangling {
		danglingMass += p[i]
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > t.n {
		workers = t.n
	}
	if workers <= 1 {
		t.stepRange(dst, p, teleport, damping, danglingMass, 0, t.n)
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	chunk := (t.n + workers - 1) / workers
	for start := 0; start < t.n; start += chunk {
		start, end := start, start+chunk
		if end > t.n {
			end = t.n
		}
		g.Go(func() error {
			t.stepRange(dst, p, teleport, damping, danglingMass, start, end)
			return nil
		})
	}
	return g.Wait()
}

func (t *transition) stepRange(dst, p, teleport []float64, damping, danglingMass float64, start, end int) {
	for i := start; i < end; i++ {
		sum := 0.0
		for j := t.inStart[i]; j < t.inStart[i+1]; j++ {
			sum += t.inProb[j] * p[t.inSrc[j]]
		}
		dst[i] = damping*(sum+danglingMass*teleport[i]) + (1-damping)*teleport[i]
	}
}
