package rules

import (
	"slices"
	"strings"
	"sync"
	"time"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/telemetry"
)

// Match is the rule that fired for one taxonomy.
type Match struct {
	Rule     string
	Taxonomy string
	Category string
	// Keywords are the matched keywords, one per satisfied AllOf group.
	Keywords []string
}

// Engine evaluates a RuleSet against product text. All keywords are found in a single
// Aho-Corasick pass, then rules are checked in order.
type Engine struct {
	mu        sync.RWMutex
	matcher   *ahocorasick.Matcher
	keywords  []string
	compiled  []compiledRule
	rules     []Rule
	telemetry *telemetry.Provider
	logger    infralogger.Logger
}

type compiledRule struct {
	rule   Rule
	allOf  [][]int
	noneOf []int
}

// NewEngine compiles rs. Disabled rules are dropped; the order of the rest is kept.
func NewEngine(rs RuleSet, logger infralogger.Logger, tp *telemetry.Provider) (*Engine, error) {
	if logger == nil {
		logger = infralogger.NewNop()
	}
	e := &Engine{telemetry: tp, logger: logger}
	if err := e.UpdateRules(rs); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateRules swaps the rule set without restarting.
func (e *Engine) UpdateRules(rs RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}

	enabled := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.IsEnabled() {
			enabled = append(enabled, r)
		}
	}

	index := make(map[string]int)
	var keywords []string
	intern := func(kw string) int {
		kw = normalizeKeyword(kw)
		if i, ok := index[kw]; ok {
			return i
		}
		index[kw] = len(keywords)
		keywords = append(keywords, kw)
		return index[kw]
	}

	compiled := make([]compiledRule, len(enabled))
	for i, r := range enabled {
		c := compiledRule{rule: r, allOf: make([][]int, len(r.AllOf))}
		for g, group := range r.AllOf {
			for _, kw := range group {
				c.allOf[g] = append(c.allOf[g], intern(kw))
			}
		}
		for _, kw := range r.NoneOf {
			if normalizeKeyword(kw) != "" {
				c.noneOf = append(c.noneOf, intern(kw))
			}
		}
		compiled[i] = c
	}

	var matcher *ahocorasick.Matcher
	if len(keywords) > 0 {
		matcher = ahocorasick.NewStringMatcher(keywords)
	}

	e.mu.Lock()
	e.matcher = matcher
	e.keywords = keywords
	e.compiled = compiled
	e.rules = enabled
	e.mu.Unlock()

	e.logger.Info("rule engine loaded",
		infralogger.Int("rules", len(enabled)),
		infralogger.Int("keywords", len(keywords)))
	return nil
}

// Match returns the first matching rule per taxonomy. Taxonomies with no match are
// absent from the result.
func (e *Engine) Match(text string) map[string]Match {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make(map[string]Match)
	if e.matcher == nil {
		return result
	}

	normalized := features.Normalize(text)
	hit := make([]bool, len(e.keywords))
	for _, idx := range e.matcher.MatchThreadSafe([]byte(normalized)) {
		if idx < len(hit) {
			hit[idx] = true
		}
	}

	for _, c := range e.compiled {
		if _, decided := result[c.rule.Taxonomy]; decided {
			continue
		}
		matched, ok := e.evaluate(c, hit)
		if !ok {
			continue
		}
		result[c.rule.Taxonomy] = Match{
			Rule:     c.rule.Name,
			Taxonomy: c.rule.Taxonomy,
			Category: strings.TrimSpace(c.rule.Category),
			Keywords: matched,
		}
	}

	if e.telemetry != nil {
		fired := make(map[string]string, len(result))
		for taxonomy, m := range result {
			fired[taxonomy] = m.Rule
		}
		e.telemetry.RecordRuleMatch(time.Since(start), fired)
	}

	return result
}

// MatchTaxonomy returns the first matching rule for one taxonomy.
func (e *Engine) MatchTaxonomy(text, taxonomy string) (Match, bool) {
	m, ok := e.Match(text)[taxonomy]
	return m, ok
}

func (e *Engine) evaluate(c compiledRule, hit []bool) ([]string, bool) {
	for _, idx := range c.noneOf {
		if hit[idx] {
			return nil, false
		}
	}
	matched := make([]string, 0, len(c.allOf))
	for _, group := range c.allOf {
		found := slices.IndexFunc(group, func(idx int) bool { return hit[idx] })
		if found < 0 {
			return nil, false
		}
		matched = append(matched, e.keywords[group[found]])
	}
	return matched, true
}

// Rules returns a copy of the enabled rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// KeywordCount returns the number of distinct keywords in the automaton.
func (e *Engine) KeywordCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keywords)
}

func normalizeKeyword(kw string) string {
	return features.Normalize(kw)
}
