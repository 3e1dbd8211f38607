// Package simulation sequences whole runs: rule application, weight
// blending, the constrained solve, and result persistence, owning the
// run's status transitions along the way.
package simulation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pagelift/linksim/internal/rules"
)

// BoostSpec asks the solver to push a page toward a multiple of its
// baseline score.
type BoostSpec struct {
	URL          string  `yaml:"url" json:"url"`
	TargetFactor float64 `yaml:"target_factor" json:"target_factor"`
}

// ProtectSpec shields a page from losing rank. A positive factor is an
// absolute floor as a fraction of the page's baseline; a negative factor
// means "lose at most |factor| of the current score".
type ProtectSpec struct {
	URL              string  `yaml:"url" json:"url"`
	ProtectionFactor float64 `yaml:"protection_factor" json:"protection_factor"`
}

// OutflowCapSpec limits how much rank a page passes on through its links;
// the remainder stays via a self-loop.
type OutflowCapSpec struct {
	URL       string  `yaml:"url" json:"url"`
	CapFactor float64 `yaml:"cap_factor" json:"cap_factor"`
}

// Scenario is the full declarative input of one run.
type Scenario struct {
	Name        string                 `yaml:"name" json:"name"`
	Rules       []rules.Spec           `yaml:"rules,omitempty" json:"rules,omitempty"`
	Structural  []rules.StructuralSpec `yaml:"structural_rules,omitempty" json:"structural_rules,omitempty"`
	Boosts      []BoostSpec            `yaml:"boosts,omitempty" json:"boosts,omitempty"`
	Protections []ProtectSpec          `yaml:"protections,omitempty" json:"protections,omitempty"`
	OutflowCaps []OutflowCapSpec       `yaml:"outflow_caps,omitempty" json:"outflow_caps,omitempty"`

	// LegacyUniformWeights disables semantic weighting for this run even
	// when it is enabled in config: edges keep their structural weights.
	LegacyUniformWeights bool `yaml:"legacy_uniform_weights,omitempty" json:"legacy_uniform_weights,omitempty"`

	// SemanticThreshold overrides the configured similarity threshold
	// for this run. Zero keeps the configured value.
	SemanticThreshold float64 `yaml:"semantic_threshold,omitempty" json:"semantic_threshold,omitempty"`

	// Seed makes the randomized selection strategies reproducible.
	// Zero means a random seed.
	Seed int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Validate checks every rule in the scenario before a run record exists.
func (s Scenario) Validate() error {
	for i, r := range s.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	for i, r := range s.Structural {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("structural rule %d: %w", i+1, err)
		}
	}
	for i, b := range s.Boosts {
		if b.TargetFactor <= 0 {
			return fmt.Errorf("boost %d: target_factor must be positive, got %g", i+1, b.TargetFactor)
		}
	}
	for i, c := range s.OutflowCaps {
		if c.CapFactor <= 0 || c.CapFactor > 1 {
			return fmt.Errorf("outflow cap %d: cap_factor must be in (0,1], got %g", i+1, c.CapFactor)
		}
	}
	return nil
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario file: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}
