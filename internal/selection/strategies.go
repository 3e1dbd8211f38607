package selection

import (
	"math/rand"
	"sort"

	"github.com/pagelift/linksim/internal/graph"
)

// categoryStrategy picks targets from the source page's own category,
// sampling uniformly when there are more matches than slots.
type categoryStrategy struct {
	rng *rand.Rand
}

func (s categoryStrategy) Select(source graph.Page, candidates []graph.Page, maxTargets int) []graph.Page {
	var same []graph.Page
	for _, c := range candidates {
		if c.Category == source.Category {
			same = append(same, c)
		}
	}
	return sample(s.rng, same, maxTargets)
}

// relevanceMixStrategy splits the pick 70% same-category / 30%
// other-category (rounded down), sampling each bucket without replacement.
// An empty bucket is skipped rather than refilled from the other.
type relevanceMixStrategy struct {
	rng *rand.Rand
}

func (s relevanceMixStrategy) Select(source graph.Page, candidates []graph.Page, maxTargets int) []graph.Page {
	if maxTargets <= 0 {
		return nil
	}

	var same, other []graph.Page
	for _, c := range candidates {
		if c.Category == source.Category {
			same = append(same, c)
		} else {
			other = append(other, c)
		}
	}

	sameCount := int(float64(maxTargets) * relevanceMixSameCategoryShare)
	if sameCount > len(same) {
		sameCount = len(same)
	}
	otherCount := maxTargets - sameCount
	if otherCount > len(other) {
		otherCount = len(other)
	}

	targets := sample(s.rng, same, sameCount)
	targets = append(targets, sample(s.rng, other, otherCount)...)
	return targets
}

// randomStrategy samples uniformly over all candidates, ignoring category.
type randomStrategy struct {
	rng *rand.Rand
}

func (s randomStrategy) Select(source graph.Page, candidates []graph.Page, maxTargets int) []graph.Page {
	return sample(s.rng, candidates, maxTargets)
}

// rankStrategy orders candidates by current importance score and takes the
// first maxTargets. Ties break on page ID so the pick is deterministic.
type rankStrategy struct {
	highFirst bool
}

func (s rankStrategy) Select(source graph.Page, candidates []graph.Page, maxTargets int) []graph.Page {
	if maxTargets <= 0 {
		return nil
	}

	sorted := make([]graph.Page, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			if s.highFirst {
				return sorted[i].Score > sorted[j].Score
			}
			return sorted[i].Score < sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	if maxTargets > len(sorted) {
		maxTargets = len(sorted)
	}
	return sorted[:maxTargets]
}
