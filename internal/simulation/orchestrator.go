package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/pagelift/linksim/internal/graph"
	"github.com/pagelift/linksim/internal/logging"
	"github.com/pagelift/linksim/internal/metrics"
	"github.com/pagelift/linksim/internal/rules"
	"github.com/pagelift/linksim/internal/solver"
	"github.com/pagelift/linksim/internal/store"
	"github.com/pagelift/linksim/internal/weights"
)

// SummaryStats aggregates the per-page deltas of a completed run.
type SummaryStats struct {
	PositiveDeltas      int     `json:"positive_deltas"`
	NegativeDeltas      int     `json:"negative_deltas"`
	ZeroDeltas          int     `json:"zero_deltas"`
	AvgDelta            float64 `json:"avg_delta"`
	MaxGain             float64 `json:"max_gain"`
	MaxLoss             float64 `json:"max_loss"`
	TotalRedistribution float64 `json:"total_redistribution"`
}

// RunSummary is the caller-facing outcome of a run.
type RunSummary struct {
	RunID         string             `json:"run_id"`
	Status        store.RunStatus    `json:"status"`
	NewLinksCount int                `json:"new_links_count"`
	RemovedLinks  int                `json:"removed_links_count"`
	Stats         SummaryStats       `json:"summary_stats"`
	Diagnostics   solver.Diagnostics `json:"diagnostics"`
	Elapsed       time.Duration      `json:"elapsed"`
}

// Orchestrator wires the rule engine, weight blender, solver and store
// into end-to-end runs.
type Orchestrator struct {
	store   store.Store
	solver  *solver.Solver
	blender *weights.Blender
	log     *slog.Logger
	tracer  *logging.RunTracer
}

// NewOrchestrator creates an orchestrator. The tracer may be nil.
func NewOrchestrator(st store.Store, sv *solver.Solver, bl *weights.Blender, log *slog.Logger, tracer *logging.RunTracer) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: st, solver: sv, blender: bl, log: log, tracer: tracer}
}

// Run executes one scenario against a project. Validation failures
// surface before any run record exists; once the run is created, any
// failure transitions it to failed with no partial results persisted.
func (o *Orchestrator) Run(ctx context.Context, projectID string, scenario Scenario) (RunSummary, error) {
	start := time.Now()

	if err := scenario.Validate(); err != nil {
		return RunSummary{}, fmt.Errorf("validating scenario: %w", err)
	}
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return RunSummary{}, err
	}

	run := &store.Run{ProjectID: projectID, Name: scenario.Name}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return RunSummary{}, err
	}
	o.trace("run_created", run.ID, nil)

	summary, err := o.execute(ctx, projectID, run.ID, scenario)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(string(store.RunFailed)).Inc()
		o.trace("run_failed", run.ID, map[string]any{"error": err.Error()})
		if statusErr := o.store.UpdateRunStatus(ctx, run.ID, store.RunFailed, err.Error()); statusErr != nil {
			o.log.Error("failed to mark run as failed", "run_id", run.ID, "error", statusErr)
		}
		return RunSummary{RunID: run.ID, Status: store.RunFailed}, err
	}

	metrics.RunsTotal.WithLabelValues(string(store.RunCompleted)).Inc()
	summary.RunID = run.ID
	summary.Status = store.RunCompleted
	summary.Elapsed = time.Since(start)
	o.trace("run_completed", run.ID, map[string]any{
		"new_links":  summary.NewLinksCount,
		"iterations": summary.Diagnostics.Iterations,
		"converged":  summary.Diagnostics.Converged,
	})
	o.log.Info("run completed",
		"run_id", run.ID,
		"new_links", summary.NewLinksCount,
		"removed_links", summary.RemovedLinks,
		"converged", summary.Diagnostics.Converged,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// execute is the running-state body of a run; any returned error fails
// the run.
func (o *Orchestrator) execute(ctx context.Context, projectID, runID string, scenario Scenario) (RunSummary, error) {
	if err := o.store.UpdateRunStatus(ctx, runID, store.RunRunning, ""); err != nil {
		return RunSummary{}, err
	}

	snap, err := o.loadSnapshot(ctx, projectID)
	if err != nil {
		return RunSummary{}, err
	}
	metrics.GraphPages.Set(float64(snap.NumPages()))
	metrics.GraphEdges.Set(float64(snap.NumEdges()))

	// Pages that have never been scored get a baseline solve first so
	// deltas are measured against a meaningful reference.
	snap, err = o.ensureBaselineScores(ctx, projectID, snap)
	if err != nil {
		return RunSummary{}, err
	}

	seed := scenario.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	engine := rules.NewEngine(rand.New(rand.NewSource(seed)), o.log)
	script, err := engine.Apply(snap, scenario.Rules, scenario.Structural)
	if err != nil {
		return RunSummary{}, fmt.Errorf("applying rules: %w", err)
	}
	metrics.LinksGenerated.Add(float64(len(script.Additions)))
	o.trace("rules_applied", runID, map[string]any{
		"seed": seed, "added": len(script.Additions), "removed": len(script.Removals),
	})

	newSnap, err := applyEditScript(snap, script)
	if err != nil {
		return RunSummary{}, fmt.Errorf("applying edit script: %w", err)
	}

	blender := o.blender
	if scenario.LegacyUniformWeights {
		blender = blender.Legacy()
	} else {
		blender = blender.WithThreshold(scenario.SemanticThreshold)
	}
	edgeWeights, err := blender.Blend(ctx, newSnap, script.Positions)
	if err != nil {
		return RunSummary{}, err
	}

	solveStart := time.Now()
	baseline, err := o.solver.Baseline(ctx, newSnap, edgeWeights)
	if err != nil {
		return RunSummary{}, err
	}
	metrics.SolveDuration.WithLabelValues("baseline").Observe(time.Since(solveStart).Seconds())
	metrics.SolveIterations.WithLabelValues("baseline").Observe(float64(baseline.Diagnostics.Iterations))

	cons, err := o.resolveConstraints(newSnap, baseline.Scores, scenario)
	if err != nil {
		return RunSummary{}, err
	}

	solveStart = time.Now()
	result, err := o.solver.Solve(ctx, newSnap, edgeWeights, baseline.Scores, cons)
	if err != nil {
		return RunSummary{}, err
	}
	metrics.SolveDuration.WithLabelValues("constrained").Observe(time.Since(solveStart).Seconds())
	metrics.SolveIterations.WithLabelValues("constrained").Observe(float64(result.Diagnostics.Iterations))
	metrics.BudgetUsed.WithLabelValues("protect").Set(result.Diagnostics.ProtectBudgetUsed)
	metrics.BudgetUsed.WithLabelValues("boost").Set(result.Diagnostics.BoostBudgetUsed)

	results, stats := buildResults(snap, result.Scores)

	// Persistence: results, scores and the new edge set land together;
	// a failure before completion leaves the old state in place.
	if err := o.store.SaveRunResults(ctx, runID, results); err != nil {
		return RunSummary{}, err
	}
	updates := make([]store.ScoreUpdate, 0, len(results))
	for _, r := range results {
		updates = append(updates, store.ScoreUpdate{PageID: r.PageID, Score: r.NewScore})
	}
	if err := o.store.BulkUpdateScores(ctx, projectID, updates); err != nil {
		return RunSummary{}, err
	}
	if err := o.store.ReplaceEdges(ctx, projectID, newSnap.Edges()); err != nil {
		return RunSummary{}, err
	}
	if err := o.store.UpdateRunStatus(ctx, runID, store.RunCompleted, ""); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		NewLinksCount: len(script.Additions),
		RemovedLinks:  len(script.Removals),
		Stats:         stats,
		Diagnostics:   result.Diagnostics,
	}, nil
}

// loadSnapshot builds the run's exclusive graph snapshot.
func (o *Orchestrator) loadSnapshot(ctx context.Context, projectID string) (*graph.Snapshot, error) {
	pages, err := o.store.GetPages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNoPages)
	}
	edges, err := o.store.GetEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.NewSnapshot(pages, edges)
}

// ensureBaselineScores bootstraps scores for projects that have never
// been solved, persisting the baseline so later runs measure deltas
// against it.
func (o *Orchestrator) ensureBaselineScores(ctx context.Context, projectID string, snap *graph.Snapshot) (*graph.Snapshot, error) {
	needsBootstrap := false
	for _, p := range snap.Pages() {
		if p.Score == 0 {
			needsBootstrap = true
			break
		}
	}
	if !needsBootstrap {
		return snap, nil
	}

	o.log.Info("bootstrapping baseline scores", "project_id", projectID, "pages", snap.NumPages())
	res, err := o.solver.Baseline(ctx, snap, nil)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping baseline: %w", err)
	}

	updates := make([]store.ScoreUpdate, 0, len(res.Scores))
	pages := make([]graph.Page, 0, snap.NumPages())
	for _, p := range snap.Pages() {
		p.Score = res.Scores[p.ID]
		pages = append(pages, p)
		updates = append(updates, store.ScoreUpdate{PageID: p.ID, Score: p.Score})
	}
	if err := o.store.BulkUpdateScores(ctx, projectID, updates); err != nil {
		return nil, fmt.Errorf("persisting baseline scores: %w", err)
	}
	return graph.NewSnapshot(pages, snap.Edges())
}

// resolveConstraints converts the scenario's URL-keyed specs into the
// solver's id-keyed factor maps. Negative protection factors become an
// absolute floor of current*(1-|factor|), expressed relative to the new
// graph's baseline; specs naming unknown URLs or zero-score pages are
// skipped with a warning.
func (o *Orchestrator) resolveConstraints(snap *graph.Snapshot, baseline map[int64]float64, scenario Scenario) (solver.Constraints, error) {
	cons := solver.Constraints{
		FloorFactors:  make(map[int64]float64),
		TargetFactors: make(map[int64]float64),
		OutflowCaps:   make(map[int64]float64),
	}

	for _, spec := range scenario.Protections {
		page, ok := snap.PageByURL(spec.URL)
		if !ok {
			o.log.Warn("protection spec names unknown url, skipping", "url", spec.URL)
			continue
		}
		if spec.ProtectionFactor >= 0 {
			cons.FloorFactors[page.ID] = spec.ProtectionFactor
			continue
		}
		if page.Score == 0 {
			o.log.Warn("protection spec targets page with zero current score, skipping", "url", spec.URL)
			continue
		}
		base := baseline[page.ID]
		if base <= 0 {
			o.log.Warn("protection spec targets page with zero baseline, skipping", "url", spec.URL)
			continue
		}
		loss := math.Abs(spec.ProtectionFactor)
		if loss > 1 {
			return solver.Constraints{}, fmt.Errorf("protection factor for %s out of range: %g", spec.URL, spec.ProtectionFactor)
		}
		cons.FloorFactors[page.ID] = page.Score * (1 - loss) / base
	}

	for _, spec := range scenario.Boosts {
		page, ok := snap.PageByURL(spec.URL)
		if !ok {
			o.log.Warn("boost spec names unknown url, skipping", "url", spec.URL)
			continue
		}
		cons.TargetFactors[page.ID] = spec.TargetFactor
	}

	for _, spec := range scenario.OutflowCaps {
		page, ok := snap.PageByURL(spec.URL)
		if !ok {
			o.log.Warn("outflow cap names unknown url, skipping", "url", spec.URL)
			continue
		}
		if spec.CapFactor < 1 {
			cons.OutflowCaps[page.ID] = spec.CapFactor
		}
	}
	return cons, nil
}

// applyEditScript produces the post-edit snapshot: removals drop edges,
// additions append.
func applyEditScript(snap *graph.Snapshot, script rules.EditScript) (*graph.Snapshot, error) {
	removed := make(map[graph.Edge]bool, len(script.Removals))
	for _, e := range script.Removals {
		removed[e] = true
	}

	edges := make([]graph.Edge, 0, snap.NumEdges()+len(script.Additions))
	for _, e := range snap.Edges() {
		if !removed[e] {
			edges = append(edges, e)
		}
	}
	for _, e := range script.Additions {
		if !removed[e] {
			edges = append(edges, e)
		}
	}
	return snap.WithEdges(edges)
}

// buildResults computes per-page deltas against the pre-run scores and
// aggregates the summary statistics.
func buildResults(snap *graph.Snapshot, newScores map[int64]float64) ([]store.RunResult, SummaryStats) {
	pages := snap.Pages()
	results := make([]store.RunResult, 0, len(pages))

	var stats SummaryStats
	for _, p := range pages {
		newScore := newScores[p.ID]
		delta := newScore - p.Score
		result := store.RunResult{PageID: p.ID, NewScore: newScore, Delta: delta}
		if p.Score > 0 {
			result.PercentChange = delta / p.Score * 100
		}
		results = append(results, result)

		switch {
		case delta > 0:
			stats.PositiveDeltas++
			if delta > stats.MaxGain {
				stats.MaxGain = delta
			}
		case delta < 0:
			stats.NegativeDeltas++
			if delta < stats.MaxLoss {
				stats.MaxLoss = delta
			}
		default:
			stats.ZeroDeltas++
		}
		stats.AvgDelta += delta
		stats.TotalRedistribution += math.Abs(delta)
	}
	if len(pages) > 0 {
		stats.AvgDelta /= float64(len(pages))
	}
	// Half the total absolute movement is mass that changed hands.
	stats.TotalRedistribution /= 2
	return results, stats
}

// GetRunSummary reloads a completed run's results from the store.
func (o *Orchestrator) GetRunSummary(ctx context.Context, runID string) (store.Run, []store.RunResult, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return store.Run{}, nil, err
	}
	results, err := o.store.GetRunResults(ctx, runID)
	if err != nil {
		return store.Run{}, nil, err
	}
	return run, results, nil
}

// trace emits a run event to the JSONL tracer when tracing is enabled.
func (o *Orchestrator) trace(event, runID string, extra map[string]any) {
	if o.tracer == nil {
		return
	}
	entry := map[string]any{"event": event, "run_id": runID}
	for k, v := range extra {
		entry[k] = v
	}
	o.tracer.Log(entry)
}

// ErrNoPages reports a run attempted against an empty project.
var ErrNoPages = errors.New("project has no pages")
