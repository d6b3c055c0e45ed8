// Package merge combines rule and model results into one assignment per taxonomy.
// A rule result always wins over the model for the stages it sets.
package merge

import (
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

// RuleLabels returns the stage labels a rule category sets in graph. Hierarchical
// categories set every level, padding missing levels with taxonomy.NotApplicable; flat
// categories set only the first facet.
func RuleLabels(graph taxonomy.Graph, rule *rules.Match) domain.Labels {
	if rule == nil {
		return nil
	}
	return graph.LabelsFromCategory(rule.Category)
}

// NeedsModel reports whether the model must run to complete the assignment.
func NeedsModel(graph taxonomy.Graph, rule *rules.Match) bool {
	return len(RuleLabels(graph, rule)) < len(graph.Stages)
}

// Merge decides one taxonomy. Stages set by rule take the rule's labels and the rest
// take model labels, or taxonomy.Unknown when the model has none. Provenance is rule
// whenever a rule fired; Sources is filled only when the two were mixed.
func Merge(graph taxonomy.Graph, rule *rules.Match, model domain.Labels) domain.Assignment {
	ruleLabels := RuleLabels(graph, rule)

	a := domain.Assignment{
		Labels:     make(domain.Labels, len(graph.Stages)),
		Provenance: domain.ProvenanceModel,
	}
	if rule != nil {
		a.Provenance = domain.ProvenanceRule
		a.Rule = rule.Rule
	}

	sources := make(map[string]domain.Provenance, len(graph.Stages))
	mixed := false
	for _, s := range graph.Stages {
		if label, ok := ruleLabels[s.Name]; ok {
			a.Labels[s.Name] = label
			sources[s.Name] = domain.ProvenanceRule
			continue
		}
		label, ok := model[s.Name]
		if !ok || label == "" {
			label = taxonomy.Unknown
		}
		a.Labels[s.Name] = label
		sources[s.Name] = domain.ProvenanceModel
		if rule != nil {
			mixed = true
		}
	}
	if mixed {
		a.Sources = sources
	}

	a.Category = graph.Category(a.Labels)
	return a
}
