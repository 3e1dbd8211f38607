package solver

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/pagelift/linksim/internal/graph"
)

func newTestSolver(t *testing.T, cfg Config) *Solver {
	t.Helper()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func solveSnapshot(t *testing.T, pages []graph.Page, edges []graph.Edge) *graph.Snapshot {
	t.Helper()
	snap, err := graph.NewSnapshot(pages, edges)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func pagesN(n int) []graph.Page {
	pages := make([]graph.Page, n)
	for i := range pages {
		pages[i] = graph.Page{ID: int64(i + 1), URL: urlFor(i + 1), Type: "page"}
	}
	return pages
}

func urlFor(id int) string {
	return "https://site.test/p" + strconv.Itoa(id)
}

func scoreSum(scores map[int64]float64) float64 {
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum
}

func TestBaseline_ThreeCycleIsSymmetric(t *testing.T) {
	snap := solveSnapshot(t, pagesN(3), []graph.Edge{
		{From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 1},
	})
	s := newTestSolver(t, DefaultConfig())

	res, err := s.Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if !res.Diagnostics.Converged {
		t.Errorf("3-cycle did not converge in %d iterations", res.Diagnostics.Iterations)
	}
	if math.Abs(scoreSum(res.Scores)-1) > 1e-6 {
		t.Errorf("scores sum to %.9f, want 1", scoreSum(res.Scores))
	}
	for id, score := range res.Scores {
		if math.Abs(score-1.0/3) > 1e-3 {
			t.Errorf("page %d score = %.6f, want 1/3 within 1e-3", id, score)
		}
	}
}

func TestBaseline_EmptyEdgeSetIsUniform(t *testing.T) {
	const n = 7
	snap := solveSnapshot(t, pagesN(n), nil)
	s := newTestSolver(t, DefaultConfig())

	res, err := s.Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if math.Abs(scoreSum(res.Scores)-1) > 1e-6 {
		t.Errorf("scores sum to %.9f, want 1", scoreSum(res.Scores))
	}
	for id, score := range res.Scores {
		if math.Abs(score-1.0/n) > 1e-3 {
			t.Errorf("page %d score = %.6f, want 1/%d within 1e-3", id, score, n)
		}
	}
}

func TestBaseline_HubOutranksLeaves(t *testing.T) {
	snap := solveSnapshot(t, pagesN(4), []graph.Edge{
		{From: 2, To: 1}, {From: 3, To: 1}, {From: 4, To: 1},
		{From: 1, To: 2}, {From: 1, To: 3},
		{From: 2, To: 3}, {From: 3, To: 4},
	})
	s := newTestSolver(t, DefaultConfig())

	res, err := s.Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	hub := res.Scores[1]
	for id := int64(2); id <= 4; id++ {
		if hub <= res.Scores[id] {
			t.Errorf("hub score %.6f not above page %d score %.6f", hub, id, res.Scores[id])
		}
	}
}

func TestBaseline_EmptyPageSetRejected(t *testing.T) {
	snap := solveSnapshot(t, nil, nil)
	s := newTestSolver(t, DefaultConfig())
	if _, err := s.Baseline(context.Background(), snap, nil); err == nil {
		t.Fatal("expected error for empty page set")
	}
}

func TestBaseline_WeightsShiftMass(t *testing.T) {
	// Page 1 links to 2 and 3; a heavy weight toward 2 must put page 2
	// above page 3.
	snap := solveSnapshot(t, pagesN(3), []graph.Edge{
		{From: 1, To: 2}, {From: 1, To: 3}, {From: 2, To: 1}, {From: 3, To: 1},
	})
	weights := map[graph.Edge]float64{
		{From: 1, To: 2}: 10.0,
		{From: 1, To: 3}: 1.0,
	}
	s := newTestSolver(t, DefaultConfig())

	res, err := s.Baseline(context.Background(), snap, weights)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if res.Scores[2] <= res.Scores[3] {
		t.Errorf("heavily-linked page 2 (%.6f) not above page 3 (%.6f)", res.Scores[2], res.Scores[3])
	}
}

func TestSolve_ProtectedPageHoldsFloor(t *testing.T) {
	// In the hub graph page 4 ranks lowest; protect it at 1.2x its
	// baseline and check the converged score holds the floor.
	snap := solveSnapshot(t, pagesN(4), []graph.Edge{
		{From: 2, To: 1}, {From: 3, To: 1}, {From: 4, To: 1},
		{From: 1, To: 2}, {From: 1, To: 3},
		{From: 2, To: 3}, {From: 3, To: 4},
	})
	cfg := DefaultConfig()
	cfg.ProtectBudget = 0.10
	s := newTestSolver(t, cfg)

	base, err := s.Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}

	res, err := s.Solve(context.Background(), snap, nil, base.Scores, Constraints{
		FloorFactors: map[int64]float64{4: 1.2},
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	floor := 1.2 * base.Scores[4]
	if res.Scores[4] < floor-1e-6 {
		t.Errorf("protected score %.9f below floor %.9f", res.Scores[4], floor)
	}
	if math.Abs(scoreSum(res.Scores)-1) > 1e-6 {
		t.Errorf("scores sum to %.9f, want 1", scoreSum(res.Scores))
	}
}

func TestSolve_BoostedPageRespectsCeiling(t *testing.T) {
	snap := solveSnapshot(t, pagesN(4), []graph.Edge{
		{From: 2, To: 1}, {From: 3, To: 1}, {From: 4, To: 1},
		{From: 1, To: 2}, {From: 1, To: 3},
		{From: 2, To: 3}, {From: 3, To: 4},
	})
	cfg := DefaultConfig()
	cfg.BoostBudget = 0.15
	s := newTestSolver(t, cfg)

	base, err := s.Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}

	res, err := s.Solve(context.Background(), snap, nil, base.Scores, Constraints{
		TargetFactors: map[int64]float64{4: 1.5},
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	ceiling := 2.0 * 1.5 * base.Scores[4]
	if res.Scores[4] > ceiling+1e-9 {
		t.Errorf("boosted score %.9f above ceiling %.9f", res.Scores[4], ceiling)
	}
	if res.Scores[4] <= base.Scores[4] {
		t.Errorf("boosted score %.9f did not rise above baseline %.9f", res.Scores[4], base.Scores[4])
	}
	if res.Diagnostics.BoostBudgetUsed < 0 {
		t.Errorf("negative boost budget usage: %f", res.Diagnostics.BoostBudgetUsed)
	}
}

func TestSolve_NilBaselineComputedInternally(t *testing.T) {
	snap := solveSnapshot(t, pagesN(3), []graph.Edge{
		{From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 1},
	})
	s := newTestSolver(t, DefaultConfig())

	res, err := s.Solve(context.Background(), snap, nil, nil, Constraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(scoreSum(res.Scores)-1) > 1e-6 {
		t.Errorf("scores sum to %.9f, want 1", scoreSum(res.Scores))
	}
}

func TestSolve_BudgetOverflowClamped(t *testing.T) {
	snap := solveSnapshot(t, pagesN(3), []graph.Edge{{From: 1, To: 2}, {From: 2, To: 1}})
	cfg := DefaultConfig()
	cfg.ProtectBudget = 0.8
	cfg.BoostBudget = 0.8
	s := newTestSolver(t, cfg)

	res, err := s.Solve(context.Background(), snap, nil, nil, Constraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Diagnostics.BudgetsClamped {
		t.Error("overflowing budgets not reported as clamped")
	}
	if math.Abs(scoreSum(res.Scores)-1) > 1e-6 {
		t.Errorf("scores sum to %.9f, want 1", scoreSum(res.Scores))
	}
}

func TestSolve_OutflowCapKeepsMassHome(t *testing.T) {
	// A 3-cycle where page 1's outflow is capped at 0.2: page 1 keeps
	// most of its mass via the self-loop and ends above the uncapped
	// symmetric share.
	snap := solveSnapshot(t, pagesN(3), []graph.Edge{
		{From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 1},
	})
	s := newTestSolver(t, DefaultConfig())

	res, err := s.Solve(context.Background(), snap, nil, nil, Constraints{
		OutflowCaps: map[int64]float64{1: 0.2},
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Scores[1] <= 1.0/3 {
		t.Errorf("capped page score %.6f not above symmetric share", res.Scores[1])
	}
	if math.Abs(scoreSum(res.Scores)-1) > 1e-6 {
		t.Errorf("scores sum to %.9f, want 1", scoreSum(res.Scores))
	}
}

func TestSolve_CancelledContext(t *testing.T) {
	snap := solveSnapshot(t, pagesN(3), []graph.Edge{{From: 1, To: 2}})
	s := newTestSolver(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Solve(ctx, snap, nil, map[int64]float64{1: 0.3, 2: 0.3, 3: 0.4}, Constraints{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNew_ExactModeUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeExact
	if _, err := New(cfg, nil); !errors.Is(err, ErrExactSolverUnavailable) {
		t.Errorf("err = %v, want ErrExactSolverUnavailable", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Damping = 1.5
	if _, err := New(cfg, nil); err == nil {
		t.Error("damping > 1 accepted")
	}

	cfg = DefaultConfig()
	cfg.Tolerance = 0
	if _, err := New(cfg, nil); err == nil {
		t.Error("zero tolerance accepted")
	}

	cfg = DefaultConfig()
	cfg.MaxIterations = 0
	if _, err := New(cfg, nil); err == nil {
		t.Error("zero max iterations accepted")
	}
}

func TestEstimateSeconds(t *testing.T) {
	small := EstimateSeconds(100, 500, 100)
	large := EstimateSeconds(1_000_000, 10_000_000, 100)
	if small >= large {
		t.Errorf("estimate for small graph (%.3f) not below large graph (%.3f)", small, large)
	}
	// Iterations are capped at 100 for the estimate.
	if EstimateSeconds(1000, 1000, 1000) != EstimateSeconds(1000, 1000, 100) {
		t.Error("iteration cap not applied")
	}
}

func TestSolve_ParallelWorkersMatchSingleWorker(t *testing.T) {
	pages := make([]graph.Page, 50)
	var edges []graph.Edge
	for i := range pages {
		pages[i] = graph.Page{ID: int64(i + 1), URL: urlFor(i + 1)}
	}
	for i := 1; i <= 50; i++ {
		edges = append(edges, graph.Edge{From: int64(i), To: int64(i%50 + 1)})
		edges = append(edges, graph.Edge{From: int64(i), To: int64((i+6)%50 + 1)})
	}
	snap := solveSnapshot(t, pages, edges)

	single := DefaultConfig()
	single.Workers = 1
	parallel := DefaultConfig()
	parallel.Workers = 8

	resSingle, err := newTestSolver(t, single).Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("single worker: %v", err)
	}
	resParallel, err := newTestSolver(t, parallel).Baseline(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("parallel workers: %v", err)
	}

	for id := range resSingle.Scores {
		if math.Abs(resSingle.Scores[id]-resParallel.Scores[id]) > 1e-12 {
			t.Errorf("page %d: single=%.15f parallel=%.15f", id, resSingle.Scores[id], resParallel.Scores[id])
		}
	}
}
