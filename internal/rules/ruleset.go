// Package rules implements the deterministic, first-match-wins keyword rule engine.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yml
var defaultRules []byte

// Rule assigns Category in Taxonomy when its predicate holds. The predicate requires at
// least one keyword from every AllOf group and no keyword from NoneOf. Keywords match as
// substrings of the normalized text.
type Rule struct {
	Name     string     `json:"name"               yaml:"name"`
	Taxonomy string     `json:"taxonomy"           yaml:"taxonomy"`
	Category string     `json:"category"           yaml:"category"`
	AllOf    [][]string `json:"all_of"             yaml:"all_of"`
	NoneOf   []string   `json:"none_of,omitempty"  yaml:"none_of,omitempty"`
	Enabled  *bool      `json:"enabled,omitempty"  yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the rule participates in matching. Rules are enabled unless
// explicitly disabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Describe renders the predicate, e.g. bluetooth AND (headphone OR earbud).
func (r Rule) Describe() string {
	groups := make([]string, 0, len(r.AllOf))
	for _, g := range r.AllOf {
		if len(g) == 1 {
			groups = append(groups, g[0])
			continue
		}
		groups = append(groups, "("+strings.Join(g, " OR ")+")")
	}
	desc := strings.Join(groups, " AND ")
	if len(r.NoneOf) > 0 {
		desc += " AND NOT (" + strings.Join(r.NoneOf, " OR ") + ")"
	}
	return desc
}

func (r Rule) validate() error {
	if r.Name == "" {
		return errors.New("rule has no name")
	}
	if r.Taxonomy == "" {
		return fmt.Errorf("rule %s: taxonomy is required", r.Name)
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule %s: category is required", r.Name)
	}
	if len(r.AllOf) == 0 {
		return fmt.Errorf("rule %s: all_of needs at least one keyword group", r.Name)
	}
	for i, g := range r.AllOf {
		if len(g) == 0 {
			return fmt.Errorf("rule %s: all_of group %d is empty", r.Name, i)
		}
		for _, kw := range g {
			if normalizeKeyword(kw) == "" {
				return fmt.Errorf("rule %s: blank keyword in all_of group %d", r.Name, i)
			}
		}
	}
	return nil
}

// RuleSet is an ordered list of rules. Order is significant: within a taxonomy the
// first matching rule wins.
type RuleSet struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Validate checks every rule and rejects duplicate names.
func (rs RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs.Rules))
	var errs []error
	for _, r := range rs.Rules {
		if err := r.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("duplicate rule name %q", r.Name))
		}
		seen[r.Name] = true
	}
	return errors.Join(errs...)
}

// CheckTaxonomies rejects rules whose taxonomy is not one of known.
func (rs RuleSet) CheckTaxonomies(known []string) error {
	var errs []error
	for _, r := range rs.Rules {
		if !slices.Contains(known, r.Taxonomy) {
			errs = append(errs, fmt.Errorf("rule %s: unknown taxonomy %q (known: %s)",
				r.Name, r.Taxonomy, strings.Join(known, ", ")))
		}
	}
	return errors.Join(errs...)
}

// ForTaxonomy returns the rules of one taxonomy, in order.
func (rs RuleSet) ForTaxonomy(taxonomy string) []Rule {
	var out []Rule
	for _, r := range rs.Rules {
		if r.Taxonomy == taxonomy {
			out = append(out, r)
		}
	}
	return out
}

// Parse decodes and validates a YAML rule set.
func Parse(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("invalid rules: %w", err)
	}
	return rs, nil
}

// LoadFile reads a YAML rule set from path.
func LoadFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in rule set.
func Default() RuleSet {
	rs, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded default rules are invalid: %v", err))
	}
	return rs
}
