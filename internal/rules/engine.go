package rules

import (
	"log/slog"
	"math/rand"
	"strings"

	"github.com/pagelift/linksim/internal/graph"
	"github.com/pagelift/linksim/internal/selection"
	"github.com/pagelift/linksim/internal/weights"
)

// EditScript is the outcome of applying a rule list: edges to append to the
// graph and edges to drop from it. Removals are computed against the full
// edge set (existing plus additions) and applied after all additive rules.
type EditScript struct {
	Additions []graph.Edge
	Removals  []graph.Edge

	// Positions records the on-page zone of each added edge so the weight
	// blender can assign structural weights. Edges absent from the map are
	// pre-existing and keep the default weight.
	Positions map[graph.Edge]weights.Position
}

// Engine applies an ordered rule list to a snapshot, cumulatively and
// duplicate-free.
type Engine struct {
	rng *rand.Rand
	log *slog.Logger
}

// NewEngine creates an engine. The random source drives every sampling
// strategy, so a seeded source reproduces exact link sets.
func NewEngine(rng *rand.Rand, log *slog.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{rng: rng, log: log}
}

// Apply runs all cumulative rules in order, then all structural rules, and
// returns the resulting edit script. Later rules see edges added by earlier
// ones. Specs must have passed Validate; an unknown selection method falls
// back to the default strategy with a warning rather than failing the run.
func (e *Engine) Apply(snap *graph.Snapshot, specs []Spec, structural []StructuralSpec) (EditScript, error) {
	script := EditScript{Positions: make(map[graph.Edge]weights.Position)}

	// Running presence set: existing edges plus everything emitted so far.
	present := make(map[graph.Edge]bool, snap.NumEdges())
	for _, edge := range snap.Edges() {
		present[edge] = true
	}

	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return EditScript{}, err
		}
		added := e.applyCumulative(snap, spec, present, &script)
		e.log.Debug("applied linking rule",
			"rule", i+1, "method", spec.Method, "new_links", added)
	}

	for i, spec := range structural {
		if err := spec.Validate(); err != nil {
			return EditScript{}, err
		}
		switch spec.Action {
		case ActionAdd:
			added := e.applyStructuralAdd(snap, spec, present, &script)
			e.log.Debug("applied structural rule",
				"rule", i+1, "zone", spec.Zone, "action", spec.Action, "new_links", added)
		case ActionRemove:
			removed := e.applyStructuralRemove(snap, spec, present, &script)
			e.log.Debug("applied structural rule",
				"rule", i+1, "zone", spec.Zone, "action", spec.Action, "removed_links", removed)
		}
	}

	return script, nil
}

// applyCumulative applies one Spec, emitting up to LinksPerPage new edges
// per source page.
func (e *Engine) applyCumulative(snap *graph.Snapshot, spec Spec, present map[graph.Edge]bool, script *EditScript) int {
	sources := filterPages(snap.Pages(), spec.SourceFilter)
	targets := filterPages(snap.Pages(), spec.TargetFilter)

	strategy, known := selection.ForMethod(spec.Method, e.rng)
	if !known {
		e.log.Warn("unknown selection method, falling back to default",
			"method", spec.Method, "fallback", selection.DefaultMethod)
	}

	position := spec.LinkPosition
	if position == "" {
		position = weights.PositionContent
	}

	added := 0
	for _, source := range sources {
		candidates := targets
		if spec.AvoidSelfLinks {
			candidates = withoutPage(targets, source.ID)
		}

		for _, target := range strategy.Select(source, candidates, spec.LinksPerPage) {
			if emitEdge(graph.Edge{From: source.ID, To: target.ID}, position, present, script) {
				added++
			}
			if spec.Bidirectional {
				if emitEdge(graph.Edge{From: target.ID, To: source.ID}, position, present, script) {
					added++
				}
			}
		}
	}
	return added
}

// applyStructuralAdd connects source pages to each resolved target: every
// page for menu rules, pages of the listed types for footer rules.
func (e *Engine) applyStructuralAdd(snap *graph.Snapshot, spec StructuralSpec, present map[graph.Edge]bool, script *EditScript) int {
	targetIDs := resolveTargetURLs(snap, spec.TargetURLs)
	if len(targetIDs) == 0 {
		return 0
	}

	position := spec.Position()
	added := 0
	for _, source := range structuralSources(snap, spec) {
		for _, targetID := range targetIDs {
			if source.ID == targetID {
				continue
			}
			if emitEdge(graph.Edge{From: source.ID, To: targetID}, position, present, script) {
				added++
			}
		}
	}
	return added
}

// applyStructuralRemove marks the same candidate edge set for exclusion
// from the final edge list. It adds nothing.
func (e *Engine) applyStructuralRemove(snap *graph.Snapshot, spec StructuralSpec, present map[graph.Edge]bool, script *EditScript) int {
	targetIDs := resolveTargetURLs(snap, spec.TargetURLs)
	if len(targetIDs) == 0 {
		return 0
	}

	removed := 0
	for _, source := range structuralSources(snap, spec) {
		for _, targetID := range targetIDs {
			if source.ID == targetID {
				continue
			}
			edge := graph.Edge{From: source.ID, To: targetID}
			if !present[edge] {
				continue
			}
			script.Removals = append(script.Removals, edge)
			delete(present, edge)
			removed++
		}
	}
	return removed
}

// emitEdge appends an edge to the script unless it is already present,
// returning whether it was added.
func emitEdge(edge graph.Edge, position weights.Position, present map[graph.Edge]bool, script *EditScript) bool {
	if present[edge] {
		return false
	}
	present[edge] = true
	script.Additions = append(script.Additions, edge)
	script.Positions[edge] = position
	return true
}

// structuralSources returns the pages a structural rule edits: all pages
// for menu rules, type-filtered pages for footer rules.
func structuralSources(snap *graph.Snapshot, spec StructuralSpec) []graph.Page {
	if spec.Zone != ZoneFooter {
		return snap.Pages()
	}
	return filterPages(snap.Pages(), Filter{Types: spec.SourceTypes})
}

// resolveTargetURLs matches target URLs against pages by exact match or
// substring containment, returning the matching page ids.
func resolveTargetURLs(snap *graph.Snapshot, targetURLs []string) []int64 {
	var ids []int64
	for _, page := range snap.Pages() {
		for _, target := range targetURLs {
			if target == page.URL || strings.Contains(page.URL, target) {
				ids = append(ids, page.ID)
				break
			}
		}
	}
	return ids
}

// filterPages keeps pages whose type and category match the filter.
// Empty filter lists mean no restriction; matching is case-insensitive.
func filterPages(pages []graph.Page, f Filter) []graph.Page {
	types := lowerSet(f.Types)
	categories := lowerSet(f.Categories)

	var out []graph.Page
	for _, p := range pages {
		if len(types) > 0 && !types[strings.ToLower(p.Type)] {
			continue
		}
		if len(categories) > 0 && !categories[strings.ToLower(p.Category)] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func lowerSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func withoutPage(pages []graph.Page, id int64) []graph.Page {
	out := make([]graph.Page, 0, len(pages))
	for _, p := range pages {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
