// Package constants defines shared numeric defaults used across linksim.
package constants

const (
	// DefaultDamping is the probability of following a link rather than
	// teleporting. Standard value: 0.85.
	DefaultDamping = 0.85

	// DefaultTolerance is the L1 convergence threshold for the fast solver.
	DefaultTolerance = 1e-6

	// DefaultMaxIterations bounds the power-iteration loop in fast mode.
	DefaultMaxIterations = 100

	// DefaultProtectBudget is the teleportation mass reserved for
	// protected pages per iteration.
	DefaultProtectBudget = 0.05

	// DefaultBoostBudget is the teleportation mass reserved for boosted
	// pages per iteration.
	DefaultBoostBudget = 0.08

	// MaxProtectBudget and MaxBoostBudget are the clamp values applied
	// when the combined budgets exceed 1.0.
	MaxProtectBudget = 0.4
	MaxBoostBudget   = 0.6

	// BoostCeilingMultiplier caps a boosted page's score at this multiple
	// of its target (ceiling = multiplier * target_factor * baseline).
	BoostCeilingMultiplier = 2.0

	// DefaultSemanticThreshold is the minimum similarity score below which
	// the semantic contribution to an edge weight is zeroed.
	DefaultSemanticThreshold = 0.4

	// MassTolerance is the acceptable deviation of a score vector's sum
	// from 1.0 before the projection redistributes mass.
	MassTolerance = 1e-10
)
