// Package selection implements the target-selection strategies the rule
// engine delegates to when choosing which pages a source page should link to.
//
// All randomized strategies draw from an injected *rand.Rand so tests can
// reproduce exact link sets from a seed.
package selection

import (
	"math/rand"

	"github.com/pagelift/linksim/internal/graph"
)

// Method identifies a selection strategy. The set of methods is closed;
// dispatch happens through ForMethod rather than a mutable registry.
type Method string

const (
	// MethodCategory picks targets sharing the source page's category.
	MethodCategory Method = "category"
	// MethodRelevanceMix blends same-category and other-category targets
	// at a 70/30 split.
	MethodRelevanceMix Method = "relevance_mix"
	// MethodRandom picks uniformly over all candidates.
	MethodRandom Method = "random"
	// MethodRankHigh picks the highest-scored candidates first.
	MethodRankHigh Method = "rank_high"
	// MethodRankLow picks the lowest-scored candidates first.
	MethodRankLow Method = "rank_low"
)

// DefaultMethod is the strategy used when a rule names an unknown method.
const DefaultMethod = MethodCategory

// relevanceMixSameCategoryShare is the fraction of a relevance-mix pick
// reserved for same-category candidates.
const relevanceMixSameCategoryShare = 0.7

// Strategy picks up to maxTargets link targets for a source page from the
// candidate set. Implementations never return duplicates and never mutate
// the candidate slice.
type Strategy interface {
	Select(source graph.Page, candidates []graph.Page, maxTargets int) []graph.Page
}

// ForMethod returns the strategy for a method. The second return value is
// false when the method is unknown, in which case the default (category)
// strategy is returned so callers can fall back without branching.
func ForMethod(method Method, rng *rand.Rand) (Strategy, bool) {
	switch method {
	case MethodCategory:
		return categoryStrategy{rng: rng}, true
	case MethodRelevanceMix:
		return relevanceMixStrategy{rng: rng}, true
	case MethodRandom:
		return randomStrategy{rng: rng}, true
	case MethodRankHigh:
		return rankStrategy{highFirst: true}, true
	case MethodRankLow:
		return rankStrategy{highFirst: false}, true
	default:
		return categoryStrategy{rng: rng}, false
	}
}

// sample returns a uniform random sample of size k without replacement,
// preserving no particular order. When k >= len(pages) all pages are
// returned (copied).
func sample(rng *rand.Rand, pages []graph.Page, k int) []graph.Page {
	if k <= 0 {
		return nil
	}
	if k >= len(pages) {
		out := make([]graph.Page, len(pages))
		copy(out, pages)
		return out
	}
	out := make([]graph.Page, 0, k)
	for _, idx := range rng.Perm(len(pages))[:k] {
		out = append(out, pages[idx])
	}
	return out
}
