package graph

// unionFind is a disjoint-set structure with path compression and union by
// rank, used to count weakly connected components.
type unionFind struct {
	parent map[int64]int64
	rank   map[int64]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[int64]int64),
		rank:   make(map[int64]int),
	}
}

// add inserts an element as its own singleton set. No-op if already present.
func (uf *unionFind) add(x int64) {
	if _, ok := uf.parent[x]; ok {
		return
	}
	uf.parent[x] = x
	uf.rank[x] = 0
}

// find returns the representative of the set containing x, auto-adding x as
// a singleton if it has not been seen.
func (uf *unionFind) find(x int64) int64 {
	if _, ok := uf.parent[x]; !ok {
		uf.add(x)
		return x
	}
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // path compression
	}
	return uf.parent[x]
}

// union merges the sets containing x and y.
func (uf *unionFind) union(x, y int64) {
	rx := uf.find(x)
	ry := uf.find(y)
	if rx == ry {
		return
	}
	switch {
	case uf.rank[rx] < uf.rank[ry]:
		uf.parent[rx] = ry
	case uf.rank[rx] > uf.rank[ry]:
		uf.parent[ry] = rx
	default:
		uf.parent[ry] = rx
		uf.rank[rx]++
	}
}

// count returns the number of disjoint sets.
func (uf *unionFind) count() int {
	roots := make(map[int64]bool)
	for x := range uf.parent {
		roots[uf.find(x)] = true
	}
	return len(roots)
}
