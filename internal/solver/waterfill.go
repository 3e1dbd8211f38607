package solver

import (
	"math"

	"github.com/pagelift/linksim/internal/constants"
)

// waterFill projects p onto the set {floor[i] <= x[i] <= ceiling[i],
// sum(x) = 1}, redistributing the surplus or deficit left by clamping
// across the entries that still have slack. floors entries are >= 0;
// ceilings entries are +Inf when unconstrained.
//
// The input slice is not modified. The boolean result reports whether the
// projection hit the degenerate no-slack case, in which bound adherence is
// best-effort only.
func waterFill(p, floors, ceilings []float64) ([]float64, bool) {
	n := len(p)
	out := make([]float64, n)

	sum := 0.0
	for i := range p {
		v := p[i]
		if v < floors[i] {
			v = floors[i]
		}
		if v > ceilings[i] {
			v = ceilings[i]
		}
		out[i] = v
		sum += v
	}

	deficit := 1 - sum
	if math.Abs(deficit) < constants.MassTolerance {
		return out, false
	}

	adjustable := make([]int, 0, n)
	for i := range out {
		if out[i] > floors[i] && out[i] < ceilings[i] {
			adjustable = append(adjustable, i)
		}
	}

	if len(adjustable) == 0 {
		return relaxBounds(out, floors, sum), true
	}

	if deficit > 0 {
		// Headroom under an unconstrained (+Inf) ceiling counts as 1,
		// the largest amount any entry could possibly absorb.
		distribute(out, adjustable, deficit, func(i int) float64 {
			return math.Min(ceilings[i]-out[i], 1)
		})
	} else {
		distribute(out, adjustable, deficit, func(i int) float64 { return out[i] - floors[i] })
	}

	// Final clip and exact renormalization.
	sum = 0.0
	for i := range out {
		if out[i] < floors[i] {
			out[i] = floors[i]
		}
		if out[i] > ceilings[i] {
			out[i] = ceilings[i]
		}
		sum += out[i]
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out, false
}

// distribute spreads deficit across the adjustable entries: proportional
// to each entry's slack when the total slack covers the deficit, evenly
// otherwise (the subsequent clip absorbs any overshoot).
func distribute(out []float64, adjustable []int, deficit float64, slack func(int) float64) {
	need := math.Abs(deficit)
	sign := 1.0
	if deficit < 0 {
		sign = -1.0
	}

	totalSlack := 0.0
	for _, i := range adjustable {
		totalSlack += slack(i)
	}

	if totalSlack >= need && totalSlack > 0 {
		for _, i := range adjustable {
			out[i] += sign * need * slack(i) / totalSlack
		}
		return
	}
	even := need / float64(len(adjustable))
	for _, i := range adjustable {
		out[i] += sign * even
	}
}

// relaxBounds handles the degenerate case where every entry sits on a
// bound. Ceilings are relaxed before floors: when the floors alone fit
// under 1, the mass above each floor is rescaled so the total reaches 1
// with every floor intact. Only when the floors themselves are infeasible
// does the whole vector get rescaled proportionally, giving up the floor
// guarantee.
func relaxBounds(out, floors []float64, sum float64) []float64 {
	floorSum := 0.0
	excess := 0.0
	for i := range out {
		floorSum += floors[i]
		excess += out[i] - floors[i]
	}

	if floorSum <= 1 && excess > 0 {
		scale := (1 - floorSum) / excess
		for i := range out {
			out[i] = floors[i] + (out[i]-floors[i])*scale
		}
		return out
	}

	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}
