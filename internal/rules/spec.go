// Package rules implements the link rule engine: ordered, cumulative edits
// to a page graph's edge set driven by declarative rule specifications.
package rules

import (
	"errors"
	"fmt"

	"github.com/pagelift/linksim/internal/selection"
	"github.com/pagelift/linksim/internal/weights"
)

// ErrUnknownAction reports a structural rule with an action other than
// add or remove.
var ErrUnknownAction = errors.New("unknown structural rule action")

// Filter restricts the pages a rule applies to. Empty lists mean no
// restriction; matching is case-insensitive.
type Filter struct {
	Types      []string `yaml:"types" json:"types"`
	Categories []string `yaml:"categories" json:"categories"`
}

// Spec describes one cumulative linking rule. Rules are applied in list
// order; later rules see edges added by earlier ones.
type Spec struct {
	SourceFilter   Filter           `yaml:"source_filter" json:"source_filter"`
	TargetFilter   Filter           `yaml:"target_filter" json:"target_filter"`
	Method         selection.Method `yaml:"selection_method" json:"selection_method"`
	LinksPerPage   int              `yaml:"links_per_page" json:"links_per_page"`
	Bidirectional  bool             `yaml:"bidirectional" json:"bidirectional"`
	AvoidSelfLinks bool             `yaml:"avoid_self_links" json:"avoid_self_links"`

	// LinkPosition determines the structural weight of edges this rule
	// emits. Empty means content.
	LinkPosition weights.Position `yaml:"link_position,omitempty" json:"link_position,omitempty"`
}

// Validate rejects specs no strategy could honor. An unknown selection
// method is not an error: the engine falls back to the default strategy.
func (s Spec) Validate() error {
	if s.LinksPerPage < 0 {
		return fmt.Errorf("links_per_page must be >= 0, got %d", s.LinksPerPage)
	}
	return nil
}

// Action says whether a structural rule adds or removes edges.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Zone identifies which site-wide block a structural rule edits.
type Zone string

const (
	// ZoneMenu rules connect every page to the resolved targets.
	ZoneMenu Zone = "menu"
	// ZoneFooter rules connect only pages whose type is listed in
	// SourceTypes.
	ZoneFooter Zone = "footer"
)

// StructuralSpec describes a menu or footer modification. Target pages are
// resolved by exact URL match or substring containment.
type StructuralSpec struct {
	Zone        Zone     `yaml:"zone" json:"zone"`
	Action      Action   `yaml:"action" json:"action"`
	TargetURLs  []string `yaml:"target_urls" json:"target_urls"`
	SourceTypes []string `yaml:"source_types,omitempty" json:"source_types,omitempty"` // footer only
}

// Validate rejects structural specs with an unknown zone or action.
func (s StructuralSpec) Validate() error {
	switch s.Action {
	case ActionAdd, ActionRemove:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, s.Action)
	}
	switch s.Zone {
	case ZoneMenu, ZoneFooter:
	default:
		return fmt.Errorf("unknown structural rule zone %q", s.Zone)
	}
	return nil
}

// Position returns the weight position structural edges carry: menu edits
// always weigh as header links, footer edits as footer links.
func (s StructuralSpec) Position() weights.Position {
	if s.Zone == ZoneFooter {
		return weights.PositionFooter
	}
	return weights.PositionHeader
}
