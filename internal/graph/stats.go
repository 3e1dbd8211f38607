package graph

// Stats summarizes the topology of a snapshot.
type Stats struct {
	NumNodes                    int     `json:"num_nodes"`
	NumEdges                    int     `json:"num_edges"`
	Density                     float64 `json:"density"`
	WeaklyConnectedComponents   int     `json:"weakly_connected_components"`
	StronglyConnectedComponents int     `json:"strongly_connected_components"`
	IsStronglyConnected         bool    `json:"is_strongly_connected"`
}

// ComputeStats computes node/edge counts, density, and connectivity for a
// snapshot. Density is e / (n*(n-1)) for a directed graph; both component
// counts treat an isolated node as its own component.
func ComputeStats(s *Snapshot) Stats {
	n := s.NumPages()
	e := s.NumEdges()

	st := Stats{NumNodes: n, NumEdges: e}
	if n > 1 {
		st.Density = float64(e) / float64(n*(n-1))
	}

	uf := newUnionFind()
	for _, p := range s.Pages() {
		uf.add(p.ID)
	}
	for _, edge := range s.Edges() {
		uf.union(edge.From, edge.To)
	}
	st.WeaklyConnectedComponents = uf.count()

	st.StronglyConnectedComponents = countSCC(s)
	st.IsStronglyConnected = n > 0 && st.StronglyConnectedComponents == 1

	return st
}

// countSCC counts strongly connected components with an iterative Tarjan
// traversal. Iterative so deep chains cannot overflow the goroutine stack.
func countSCC(s *Snapshot) int {
	n := s.NumPages()
	if n == 0 {
		return 0
	}

	index := make(map[int64]int, n)
	lowlink := make(map[int64]int, n)
	onStack := make(map[int64]bool, n)
	var stack []int64
	next := 0
	components := 0

	adj := make(map[int64][]int64, n)
	for _, e := range s.Edges() {
		adj[e.From] = append(adj[e.From], e.To)
	}

	type frame struct {
		node int64
		succ int
	}

	for _, p := range s.Pages() {
		if _, seen := index[p.ID]; seen {
			continue
		}

		frames := []frame{{node: p.ID}}
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.node

			if f.succ == 0 {
				index[v] = next
				lowlink[v] = next
				next++
				stack = append(stack, v)
				onStack[v] = true
			}

			advanced := false
			for f.succ < len(adj[v]) {
				w := adj[v][f.succ]
				f.succ++
				if _, seen := index[w]; !seen {
					frames = append(frames, frame{node: w})
					advanced = true
					break
				}
				if onStack[w] && index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
			if advanced {
				continue
			}

			// All successors visited: close the frame.
			if lowlink[v] == index[v] {
				components++
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					if w == v {
						break
					}
				}
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}

	return components
}
