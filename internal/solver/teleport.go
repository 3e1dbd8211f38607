package solver

import "github.com/pagelift/linksim/internal/constants"

// teleportVector builds the conditional teleportation distribution for one
// iteration. Protected nodes below their floor and boosted nodes below
// their target each receive a share of the respective budget proportional
// to how far short they are; unused budget flows back into the uniform
// base component. floors and targets hold absolute score values; entries
// of zero mean unconstrained.
//
// The returned vector sums to 1. The second and third results report how
// much of each budget was actually allocated this iteration.
func teleportVector(p, floors, targets []float64, etaProtect, etaBoost float64) (v []float64, protectUsed, boostUsed float64) {
	n := len(p)
	v = make([]float64, n)

	protectUsed = allocateBudget(v, p, floors, etaProtect)
	boostUsed = allocateBudget(v, p, targets, etaBoost)

	unused := (etaProtect - protectUsed) + (etaBoost - boostUsed)
	baseWeight := 1 - etaProtect - etaBoost + unused

	uniform := baseWeight / float64(n)
	sum := 0.0
	for i := range v {
		v[i] += uniform
		sum += v[i]
	}
	if sum > 0 {
		for i := range v {
			v[i] /= sum
		}
	}
	return v, protectUsed, boostUsed
}

// allocateBudget splits eta across the nodes whose current score falls
// short of its desired value, proportional to the shortfall. Each
// allocation is capped so the running total never exceeds eta. Allocated
// mass is added into v; the total allocated is returned.
func allocateBudget(v, p, desired []float64, eta float64) float64 {
	if eta <= 0 {
		return 0
	}

	totalNeed := 0.0
	for i, want := range desired {
		if want > 0 && p[i] < want {
			totalNeed += want - p[i]
		}
	}
	if totalNeed == 0 {
		return 0
	}

	perUnit := eta / totalNeed
	used := 0.0
	for i, want := range desired {
		if want <= 0 || p[i] >= want {
			continue
		}
		allocation := (want - p[i]) * perUnit
		if remaining := eta - used; allocation > remaining {
			allocation = remaining
		}
		v[i] += allocation
		used += allocation
	}
	return used
}

// clampBudgets enforces etaProtect + etaBoost <= 1 by clamping to the
// documented limits. Returns the possibly adjusted budgets and whether a
// clamp happened.
func clampBudgets(etaProtect, etaBoost float64) (float64, float64, bool) {
	if etaProtect < 0 {
		etaProtect = 0
	}
	if etaBoost < 0 {
		etaBoost = 0
	}
	if etaProtect+etaBoost <= 1 {
		return etaProtect, etaBoost, false
	}
	if etaProtect > constants.MaxProtectBudget {
		etaProtect = constants.MaxProtectBudget
	}
	if limit := constants.MaxBoostBudget - etaProtect; etaBoost > limit {
		etaBoost = limit
	}
	return etaProtect, etaBoost, true
}
