package simulation

import (
	"context"
	"math/rand"

	"github.com/pagelift/linksim/internal/rules"
	"github.com/pagelift/linksim/internal/weights"
)

// PreviewLink is one sampled link of a preview, resolved to URLs.
type PreviewLink struct {
	FromID   int64            `json:"from_id"`
	ToID     int64            `json:"to_id"`
	FromURL  string           `json:"from_url"`
	ToURL    string           `json:"to_url"`
	Position weights.Position `json:"position"`
}

// Preview is the outcome of a dry rule application: what the rules would
// change, with no solving and no persistence.
type Preview struct {
	RulesApplied  int           `json:"rules_applied"`
	TotalNewLinks int           `json:"total_new_links"`
	RemovedLinks  int           `json:"removed_links"`
	SampleLinks   []PreviewLink `json:"sample_links"`
	Truncated     bool          `json:"truncated"`
}

// PreviewRules runs only the rule engine over the project's graph and
// samples up to previewCount of the generated links.
func (o *Orchestrator) PreviewRules(ctx context.Context, projectID string, scenario Scenario, previewCount int) (Preview, error) {
	if err := scenario.Validate(); err != nil {
		return Preview{}, err
	}
	snap, err := o.loadSnapshot(ctx, projectID)
	if err != nil {
		return Preview{}, err
	}

	seed := scenario.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	engine := rules.NewEngine(rand.New(rand.NewSource(seed)), o.log)
	script, err := engine.Apply(snap, scenario.Rules, scenario.Structural)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{
		RulesApplied:  len(scenario.Rules) + len(scenario.Structural),
		TotalNewLinks: len(script.Additions),
		RemovedLinks:  len(script.Removals),
	}

	sample := script.Additions
	if previewCount > 0 && len(sample) > previewCount {
		sample = sample[:previewCount]
		preview.Truncated = true
	}
	for _, e := range sample {
		link := PreviewLink{FromID: e.From, ToID: e.To, Position: script.Positions[e]}
		if p, ok := snap.PageByID(e.From); ok {
			link.FromURL = p.URL
		}
		if p, ok := snap.PageByID(e.To); ok {
			link.ToURL = p.URL
		}
		preview.SampleLinks = append(preview.SampleLinks, link)
	}
	return preview, nil
}
