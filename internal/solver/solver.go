// Package solver computes page importance scores over a weighted link
// graph via damped power iteration, optionally under floor/ceiling
// constraints enforced through budgeted conditional teleportation and a
// water-filling projection.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/pagelift/linksim/internal/constants"
	"github.com/pagelift/linksim/internal/graph"
)

// Mode selects the solver code path.
type Mode string

const (
	// ModeFast is the approximate iterative path and the only one
	// currently implemented.
	ModeFast Mode = "fast"
	// ModeExact is a reserved extension point.
	ModeExact Mode = "exact"
)

// ErrExactSolverUnavailable reports a request for the exact solver path,
// which is reserved but not implemented.
var ErrExactSolverUnavailable = errors.New("exact solver mode is not implemented, use fast")

// Config holds solver tuning. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int

	// ProtectBudget and BoostBudget are the teleportation mass shares
	// reserved per iteration for protected and boosted pages. Their sum
	// is clamped to 1.
	ProtectBudget float64
	BoostBudget   float64

	// Workers bounds the fan-out of the matrix-vector step. Zero means
	// GOMAXPROCS.
	Workers int

	Mode Mode
}

// DefaultConfig returns the standard fast-mode configuration.
func DefaultConfig() Config {
	return Config{
		Damping:       constants.DefaultDamping,
		Tolerance:     constants.DefaultTolerance,
		MaxIterations: constants.DefaultMaxIterations,
		ProtectBudget: constants.DefaultProtectBudget,
		BoostBudget:   constants.DefaultBoostBudget,
		Workers:       runtime.GOMAXPROCS(0),
		Mode:          ModeFast,
	}
}

// Validate rejects configurations the iteration cannot run with.
func (c Config) Validate() error {
	if c.Damping <= 0 || c.Damping >= 1 {
		return fmt.Errorf("damping must be in (0,1), got %g", c.Damping)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// Constraints are the per-page constraint maps of one constrained solve,
// keyed by page id. Factors are relative to the page's baseline score.
type Constraints struct {
	// FloorFactors protects pages: floor = factor * baseline.
	FloorFactors map[int64]float64
	// TargetFactors boosts pages toward target = factor * baseline, with
	// a ceiling of BoostCeilingMultiplier * target.
	TargetFactors map[int64]float64
	// OutflowCaps scales a page's outgoing link probabilities by the cap
	// and turns the remainder into a self-loop. Values in (0,1).
	OutflowCaps map[int64]float64
}

// Diagnostics reports how a solve went. Non-convergence is not an error;
// the caller decides whether a best-effort vector is acceptable.
type Diagnostics struct {
	Converged         bool    `json:"converged"`
	Iterations        int     `json:"iterations_run"`
	FinalL1Residual   float64 `json:"final_l1_residual"`
	ProtectBudgetUsed float64 `json:"protect_budget_used"`
	BoostBudgetUsed   float64 `json:"boost_budget_used"`
	BudgetsClamped    bool    `json:"budgets_clamped,omitempty"`
	DegenerateSteps   int     `json:"degenerate_projection_steps,omitempty"`
}

// Result is the outcome of a solve: one score per page, summing to 1.
type Result struct {
	Scores      map[int64]float64
	Diagnostics Diagnostics
}

// Solver runs baseline and constrained solves over snapshots.
type Solver struct {
	cfg Config
	log *slog.Logger
}

// New creates a solver. A nil logger uses slog.Default.
func New(cfg Config, log *slog.Logger) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("solver config: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFast
	}
	if cfg.Mode != ModeFast {
		return nil, ErrExactSolverUnavailable
	}
	if log == nil {
		log = slog.Default()
	}
	return &Solver{cfg: cfg, log: log}, nil
}

// EstimateSeconds predicts the runtime of a solve from the graph size, for
// logging and for choosing between solver paths when more than one exists.
func EstimateSeconds(numPages, numEdges, maxIterations int) float64 {
	iterations := maxIterations
	if iterations > 100 {
		iterations = 100
	}
	return 0.1 + (float64(numPages)*0.00001+float64(numEdges)*0.000001)*float64(iterations)
}

// Baseline runs an unconstrained solve: uniform teleportation, no bounds.
// The returned scores sum to 1 and serve as the reference for floors and
// ceilings in a constrained solve.
func (s *Solver) Baseline(ctx context.Context, snap *graph.Snapshot, weights map[graph.Edge]float64) (Result, error) {
	n := snap.NumPages()
	if n == 0 {
		return Result{}, errors.New("baseline solve: empty page set")
	}

	t := newTransition(snap, weights, nil)
	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = 1.0 / float64(n)
	}

	p := make([]float64, n)
	copy(p, uniform)
	next := make([]float64, n)

	diag := Diagnostics{}
	for iter := 1; iter <= s.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("baseline solve cancelled: %w", err)
		}
		if err := t.step(ctx, next, p, uniform, s.cfg.Damping, s.cfg.Workers); err != nil {
			return Result{}, fmt.Errorf("baseline solve: %w", err)
		}

		diag.Iterations = iter
		diag.FinalL1Residual = l1Distance(next, p)
		p, next = next, p

		if diag.FinalL1Residual < s.cfg.Tolerance {
			diag.Converged = true
			break
		}
		if iter%100 == 0 {
			runtime.Gosched()
		}
	}

	if !diag.Converged {
		s.log.Warn("baseline solve did not converge",
			"iterations", diag.Iterations, "residual", diag.FinalL1Residual, "tolerance", s.cfg.Tolerance)
	}
	return Result{Scores: t.toMap(p), Diagnostics: diag}, nil
}

// Solve runs a constrained solve. The baseline map provides the reference
// scores floors and ceilings are computed against; when nil, a fresh
// baseline solve is run first. Scores start from the baseline and iterate
// under conditional teleportation with a water-filling projection each
// step.
func (s *Solver) Solve(ctx context.Context, snap *graph.Snapshot, weights map[graph.Edge]float64, baseline map[int64]float64, cons Constraints) (Result, error) {
	n := snap.NumPages()
	if n == 0 {
		return Result{}, errors.New("constrained solve: empty page set")
	}

	if baseline == nil {
		base, err := s.Baseline(ctx, snap, weights)
		if err != nil {
			return Result{}, err
		}
		baseline = base.Scores
	}

	etaProtect, etaBoost, clamped := clampBudgets(s.cfg.ProtectBudget, s.cfg.BoostBudget)
	if clamped {
		s.log.Warn("teleport budgets exceed 1, clamped",
			"protect", s.cfg.ProtectBudget, "boost", s.cfg.BoostBudget,
			"clamped_protect", etaProtect, "clamped_boost", etaBoost)
	}

	t := newTransition(snap, weights, cons.OutflowCaps)

	p := make([]float64, n)
	baselineVec := make([]float64, n)
	for i, id := range t.ids {
		score, ok := baseline[id]
		if !ok {
			score = 1.0 / float64(n)
		}
		p[i] = score
		baselineVec[i] = score
	}

	floors := make([]float64, n)
	ceilings := make([]float64, n)
	targets := make([]float64, n)
	for i := range ceilings {
		ceilings[i] = math.Inf(1)
	}
	for id, factor := range cons.FloorFactors {
		if i, ok := t.index[id]; ok {
			floors[i] = factor * baselineVec[i]
		}
	}
	for id, factor := range cons.TargetFactors {
		if i, ok := t.index[id]; ok {
			targets[i] = factor * baselineVec[i]
			ceilings[i] = constants.BoostCeilingMultiplier * targets[i]
		}
	}

	next := make([]float64, n)
	prev := make([]float64, n)

	diag := Diagnostics{BudgetsClamped: clamped}
	for iter := 1; iter <= s.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("constrained solve cancelled: %w", err)
		}
		copy(prev, p)

		teleport, protectUsed, boostUsed := teleportVector(p, floors, targets, etaProtect, etaBoost)
		diag.ProtectBudgetUsed = protectUsed
		diag.BoostBudgetUsed = boostUsed

		if err := t.step(ctx, next, p, teleport, s.cfg.Damping, s.cfg.Workers); err != nil {
			return Result{}, fmt.Errorf("constrained solve: %w", err)
		}

		projected, degenerate := waterFill(next, floors, ceilings)
		if degenerate {
			diag.DegenerateSteps++
			if diag.DegenerateSteps == 1 {
				s.log.Warn("water-filling found no adjustable entries, bound adherence is best-effort",
					"iteration", iter)
			}
		}
		copy(p, projected)
		diag.Iterations = iter

		if iter%10 == 0 {
			diag.FinalL1Residual = l1Distance(p, prev)
			if diag.FinalL1Residual < s.cfg.Tolerance {
				diag.Converged = true
				break
			}
		}
		if iter%100 == 0 {
			runtime.Gosched()
		}
	}
	if !diag.Converged {
		diag.FinalL1Residual = l1Distance(p, prev)
		if diag.FinalL1Residual < s.cfg.Tolerance {
			diag.Converged = true
		}
	}

	if !diag.Converged {
		s.log.Warn("constrained solve did not converge",
			"iterations", diag.Iterations, "residual", diag.FinalL1Residual, "tolerance", s.cfg.Tolerance)
	}
	s.log.Debug("constrained solve finished",
		"iterations", diag.Iterations,
		"converged", diag.Converged,
		"protect_used", diag.ProtectBudgetUsed,
		"boost_used", diag.BoostBudgetUsed)

	return Result{Scores: t.toMap(p), Diagnostics: diag}, nil
}

// toMap converts an index-aligned vector back to page-id keys.
func (t *transition) toMap(p []float64) map[int64]float64 {
	out := make(map[int64]float64, t.n)
	for i, id := range t.ids {
		out[id] = p[i]
	}
	return out
}

func l1Distance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}
