package rules

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/pagelift/linksim/internal/graph"
	"github.com/pagelift/linksim/internal/selection"
	"github.com/pagelift/linksim/internal/weights"
)

func testSnapshot(t *testing.T, pages []graph.Page, edges []graph.Edge) *graph.Snapshot {
	t.Helper()
	snap, err := graph.NewSnapshot(pages, edges)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

// shopPages is a small mixed-type site: a homepage, category pages and
// products in two categories.
func shopPages() []graph.Page {
	return []graph.Page{
		{ID: 1, URL: "https://shop.test/", Type: "homepage", Category: ""},
		{ID: 2, URL: "https://shop.test/shoes", Type: "category", Category: "shoes"},
		{ID: 3, URL: "https://shop.test/bags", Type: "category", Category: "bags"},
		{ID: 4, URL: "https://shop.test/shoes/runner", Type: "product", Category: "shoes", Score: 0.3},
		{ID: 5, URL: "https://shop.test/shoes/boot", Type: "product", Category: "shoes", Score: 0.2},
		{ID: 6, URL: "https://shop.test/bags/tote", Type: "product", Category: "bags", Score: 0.1},
	}
}

func newTestEngine(seed int64) *Engine {
	return NewEngine(rand.New(rand.NewSource(seed)), nil)
}

func sortedEdges(edges []graph.Edge) []graph.Edge {
	out := make([]graph.Edge, len(edges))
	copy(out, edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func TestApply_DeterministicUnderSeed(t *testing.T) {
	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"product"}},
		Method:         selection.MethodRandom,
		LinksPerPage:   2,
		AvoidSelfLinks: true,
	}}

	var previous []graph.Edge
	for i := 0; i < 3; i++ {
		snap := testSnapshot(t, shopPages(), nil)
		script, err := newTestEngine(99).Apply(snap, specs, nil)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		got := sortedEdges(script.Additions)
		if previous != nil && !reflect.DeepEqual(previous, got) {
			t.Fatalf("run %d produced %v, earlier run produced %v", i, got, previous)
		}
		previous = got
	}
}

func TestApply_AvoidSelfLinks(t *testing.T) {
	specs := []Spec{{
		Method:         selection.MethodRandom,
		LinksPerPage:   5,
		AvoidSelfLinks: true,
	}}

	snap := testSnapshot(t, shopPages(), nil)
	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, e := range script.Additions {
		if e.From == e.To {
			t.Errorf("self link emitted: %+v", e)
		}
	}
}

func TestApply_ZeroLinksPerPage(t *testing.T) {
	specs := []Spec{{Method: selection.MethodRandom, LinksPerPage: 0}}

	snap := testSnapshot(t, shopPages(), nil)
	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(script.Additions) != 0 {
		t.Errorf("links_per_page=0 added %d edges, want 0", len(script.Additions))
	}
}

func TestApply_NegativeLinksPerPageRejected(t *testing.T) {
	specs := []Spec{{Method: selection.MethodRandom, LinksPerPage: -1}}

	snap := testSnapshot(t, shopPages(), nil)
	if _, err := newTestEngine(1).Apply(snap, specs, nil); err == nil {
		t.Fatal("expected error for negative links_per_page")
	}
}

func TestApply_CumulativeRulesSkipExistingEdges(t *testing.T) {
	// Every product already links to every other product; a rule adding
	// product-to-product links has nothing left to emit.
	products := []int64{4, 5, 6}
	var existing []graph.Edge
	for _, from := range products {
		for _, to := range products {
			if from != to {
				existing = append(existing, graph.Edge{From: from, To: to})
			}
		}
	}
	snap := testSnapshot(t, shopPages(), existing)

	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"product"}},
		TargetFilter:   Filter{Types: []string{"product"}},
		Method:         selection.MethodRandom,
		LinksPerPage:   5,
		AvoidSelfLinks: true,
	}}
	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(script.Additions) != 0 {
		t.Errorf("saturated graph still added %v", script.Additions)
	}
}

func TestApply_LaterRuleSeesEarlierAdditions(t *testing.T) {
	// Two identical rank_high rules: the deterministic strategy picks the
	// same targets both times, so the second rule adds nothing new.
	spec := Spec{
		SourceFilter:   Filter{Types: []string{"product"}},
		Method:         selection.MethodRankHigh,
		LinksPerPage:   2,
		AvoidSelfLinks: true,
	}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, []Spec{spec, spec}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	seen := make(map[graph.Edge]bool)
	for _, e := range script.Additions {
		if seen[e] {
			t.Errorf("edge %+v emitted twice", e)
		}
		seen[e] = true
	}
	if len(script.Additions) != 6 {
		t.Errorf("got %d additions, want 6 (3 sources x 2 targets, second rule redundant)", len(script.Additions))
	}
}

func TestApply_BidirectionalEmitsReverseEdges(t *testing.T) {
	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"category"}},
		TargetFilter:   Filter{Types: []string{"homepage"}},
		Method:         selection.MethodRandom,
		LinksPerPage:   1,
		Bidirectional:  true,
		AvoidSelfLinks: true,
	}}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, e := range script.Additions {
		reverse := graph.Edge{From: e.To, To: e.From}
		found := false
		for _, other := range script.Additions {
			if other == reverse {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("edge %+v has no reverse companion", e)
		}
	}
}

func TestApply_UnknownMethodFallsBackToCategory(t *testing.T) {
	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"product"}},
		TargetFilter:   Filter{Types: []string{"product"}},
		Method:         selection.Method("does_not_exist"),
		LinksPerPage:   5,
		AvoidSelfLinks: true,
	}}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Category fallback keeps links inside a category: shoes products link
	// to each other, the lone bags product gets nothing.
	want := sortedEdges([]graph.Edge{{From: 4, To: 5}, {From: 5, To: 4}})
	if got := sortedEdges(script.Additions); !reflect.DeepEqual(got, want) {
		t.Errorf("fallback additions = %v, want %v", got, want)
	}
}

func TestApply_FilterMatchingIsCaseInsensitive(t *testing.T) {
	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"PRODUCT"}, Categories: []string{"Shoes"}},
		TargetFilter:   Filter{Types: []string{"Category"}},
		Method:         selection.MethodRandom,
		LinksPerPage:   5,
		AvoidSelfLinks: true,
	}}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Sources are the two shoes products, targets both category pages.
	want := sortedEdges([]graph.Edge{
		{From: 4, To: 2}, {From: 4, To: 3},
		{From: 5, To: 2}, {From: 5, To: 3},
	})
	if got := sortedEdges(script.Additions); !reflect.DeepEqual(got, want) {
		t.Errorf("additions = %v, want %v", got, want)
	}
}

func TestApply_MenuAddLinksEveryPage(t *testing.T) {
	structural := []StructuralSpec{{
		Zone:       ZoneMenu,
		Action:     ActionAdd,
		TargetURLs: []string{"https://shop.test/shoes"},
	}}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, nil, structural)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// /shoes matches /shoes, /shoes/runner and /shoes/boot by substring.
	targets := map[int64]bool{2: true, 4: true, 5: true}
	wantCount := 0
	for _, p := range shopPages() {
		for target := range targets {
			if p.ID != target {
				wantCount++
			}
		}
	}
	if len(script.Additions) != wantCount {
		t.Errorf("menu add emitted %d edges, want %d", len(script.Additions), wantCount)
	}
	for _, e := range script.Additions {
		if !targets[e.To] {
			t.Errorf("menu edge points at non-target %+v", e)
		}
		if script.Positions[e] != weights.PositionHeader {
			t.Errorf("menu edge %+v has position %q, want header", e, script.Positions[e])
		}
	}
}

func TestApply_MenuRemoveScenario(t *testing.T) {
	// Four pages where 2, 3 and 4 each carry a menu link to page 1; the
	// remove rule must mark exactly those three edges.
	pages := []graph.Page{
		{ID: 1, URL: "https://shop.test/about", Type: "page"},
		{ID: 2, URL: "https://shop.test/a", Type: "page"},
		{ID: 3, URL: "https://shop.test/b", Type: "page"},
		{ID: 4, URL: "https://shop.test/c", Type: "page"},
	}
	existing := []graph.Edge{
		{From: 2, To: 1}, {From: 3, To: 1}, {From: 4, To: 1},
		{From: 2, To: 3}, {From: 3, To: 4},
	}
	snap := testSnapshot(t, pages, existing)

	structural := []StructuralSpec{{
		Zone:       ZoneMenu,
		Action:     ActionRemove,
		TargetURLs: []string{"https://shop.test/about"},
	}}
	script, err := newTestEngine(1).Apply(snap, nil, structural)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := sortedEdges([]graph.Edge{{From: 2, To: 1}, {From: 3, To: 1}, {From: 4, To: 1}})
	if got := sortedEdges(script.Removals); !reflect.DeepEqual(got, want) {
		t.Errorf("removals = %v, want %v", got, want)
	}
	if len(script.Additions) != 0 {
		t.Errorf("remove rule added edges: %v", script.Additions)
	}
}

func TestApply_RemoveOnlyDropsPresentEdges(t *testing.T) {
	pages := []graph.Page{
		{ID: 1, URL: "https://shop.test/about", Type: "page"},
		{ID: 2, URL: "https://shop.test/a", Type: "page"},
		{ID: 3, URL: "https://shop.test/b", Type: "page"},
	}
	snap := testSnapshot(t, pages, []graph.Edge{{From: 2, To: 1}})

	structural := []StructuralSpec{{
		Zone:       ZoneMenu,
		Action:     ActionRemove,
		TargetURLs: []string{"https://shop.test/about"},
	}}
	script, err := newTestEngine(1).Apply(snap, nil, structural)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []graph.Edge{{From: 2, To: 1}}
	if !reflect.DeepEqual(script.Removals, want) {
		t.Errorf("removals = %v, want %v (edge 3->1 was never present)", script.Removals, want)
	}
}

func TestApply_RemoveSeesCumulativeAdditions(t *testing.T) {
	// A cumulative rule adds product links to the about page, then a menu
	// remove rule strips them again.
	pages := []graph.Page{
		{ID: 1, URL: "https://shop.test/about", Type: "page"},
		{ID: 2, URL: "https://shop.test/p1", Type: "product"},
		{ID: 3, URL: "https://shop.test/p2", Type: "product"},
	}
	snap := testSnapshot(t, pages, nil)

	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"product"}},
		TargetFilter:   Filter{Types: []string{"page"}},
		Method:         selection.MethodRandom,
		LinksPerPage:   1,
		AvoidSelfLinks: true,
	}}
	structural := []StructuralSpec{{
		Zone:       ZoneMenu,
		Action:     ActionRemove,
		TargetURLs: []string{"https://shop.test/about"},
	}}

	script, err := newTestEngine(1).Apply(snap, specs, structural)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := sortedEdges([]graph.Edge{{From: 2, To: 1}, {From: 3, To: 1}})
	if got := sortedEdges(script.Additions); !reflect.DeepEqual(got, want) {
		t.Fatalf("additions = %v, want %v", got, want)
	}
	if got := sortedEdges(script.Removals); !reflect.DeepEqual(got, want) {
		t.Errorf("removals = %v, want %v", got, want)
	}
}

func TestApply_FooterAddRespectsSourceTypes(t *testing.T) {
	structural := []StructuralSpec{{
		Zone:        ZoneFooter,
		Action:      ActionAdd,
		TargetURLs:  []string{"https://shop.test/"},
		SourceTypes: []string{"product"},
	}}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, nil, structural)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, e := range script.Additions {
		page, ok := snap.PageByID(e.From)
		if !ok || page.Type != "product" {
			t.Errorf("footer edge from non-product page: %+v", e)
		}
		if script.Positions[e] != weights.PositionFooter {
			t.Errorf("footer edge %+v has position %q, want footer", e, script.Positions[e])
		}
	}
	// Homepage URL "https://shop.test/" is a substring of every page URL,
	// so each product links to every other page.
	if len(script.Additions) == 0 {
		t.Fatal("footer add emitted no edges")
	}
}

func TestApply_UnknownZoneRejected(t *testing.T) {
	structural := []StructuralSpec{{Zone: Zone("banner"), Action: ActionAdd}}
	snap := testSnapshot(t, shopPages(), nil)
	if _, err := newTestEngine(1).Apply(snap, nil, structural); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestApply_UnknownActionRejected(t *testing.T) {
	structural := []StructuralSpec{{Zone: ZoneMenu, Action: Action("toggle")}}
	snap := testSnapshot(t, shopPages(), nil)
	_, err := newTestEngine(1).Apply(snap, nil, structural)
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
	if got := fmt.Sprint(err); got == "" {
		t.Errorf("empty error message")
	}
}

func TestApply_LinkPositionRecorded(t *testing.T) {
	specs := []Spec{{
		SourceFilter:   Filter{Types: []string{"product"}},
		TargetFilter:   Filter{Types: []string{"category"}},
		Method:         selection.MethodRandom,
		LinksPerPage:   1,
		AvoidSelfLinks: true,
		LinkPosition:   weights.PositionSidebar,
	}}
	snap := testSnapshot(t, shopPages(), nil)

	script, err := newTestEngine(1).Apply(snap, specs, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(script.Additions) == 0 {
		t.Fatal("no edges added")
	}
	for _, e := range script.Additions {
		if script.Positions[e] != weights.PositionSidebar {
			t.Errorf("edge %+v position = %q, want sidebar", e, script.Positions[e])
		}
	}
}
