package merge_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/merge"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientA = taxonomy.NewClientAGraph(taxonomy.NewHierarchy(taxonomy.DefaultSeparator, 3))
	clientB = taxonomy.NewClientBGraph()
)

func TestMerge_ScenarioTwo_RuleWins(t *testing.T) {
	engine, err := rules.NewEngine(rules.Default(), nil, nil)
	require.NoError(t, err)

	match, ok := engine.MatchTaxonomy("Bluetooth Wireless Earbuds", taxonomy.ClientA)
	require.True(t, ok)

	model := domain.Labels{"level_1": "Computing", "level_2": "Accessories", "level_3": "Cables"}
	a := merge.Merge(clientA, &match, model)

	assert.Equal(t, "Audio > Headphones > Wireless", a.Category)
	assert.Equal(t, domain.ProvenanceRule, a.Provenance)
	assert.Equal(t, "wireless-audio", a.Rule)
	assert.Equal(t, domain.Labels{"level_1": "Audio", "level_2": "Headphones", "level_3": "Wireless"}, a.Labels)
	assert.Nil(t, a.Sources)
}

func TestMerge(t *testing.T) {
	testCases := []struct {
		name       string
		graph      taxonomy.Graph
		rule       *rules.Match
		model      domain.Labels
		category   string
		labels     domain.Labels
		provenance domain.Provenance
		sources    map[string]domain.Provenance
	}{
		{
			name:       "model only",
			graph:      clientA,
			model:      domain.Labels{"level_1": "Audio", "level_2": "Headphones", "level_3": "Unknown"},
			category:   "Audio > Headphones > Unknown",
			labels:     domain.Labels{"level_1": "Audio", "level_2": "Headphones", "level_3": "Unknown"},
			provenance: domain.ProvenanceModel,
		},
		{
			name:       "short rule category pads with not applicable",
			graph:      clientA,
			rule:       &rules.Match{Rule: "hubs", Category: "Computing > Hubs"},
			model:      domain.Labels{"level_1": "Audio", "level_2": "Headphones", "level_3": "Wireless"},
			category:   "Computing > Hubs > N/A",
			labels:     domain.Labels{"level_1": "Computing", "level_2": "Hubs", "level_3": "N/A"},
			provenance: domain.ProvenanceRule,
		},
		{
			name:       "flat rule sets department and model fills price tier",
			graph:      clientB,
			rule:       &rules.Match{Rule: "watches", Category: "Apparel"},
			model:      domain.Labels{"department": "Electronics", "price_tier": "Premium"},
			category:   "Apparel",
			labels:     domain.Labels{"department": "Apparel", "price_tier": "Premium"},
			provenance: domain.ProvenanceRule,
			sources:    map[string]domain.Provenance{"department": "rule", "price_tier": "model"},
		},
		{
			name:       "no rule and no model",
			graph:      clientB,
			category:   "Unknown",
			labels:     domain.Labels{"department": "Unknown", "price_tier": "Unknown"},
			provenance: domain.ProvenanceModel,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := merge.Merge(tc.graph, tc.rule, tc.model)
			assert.Equal(t, tc.category, a.Category)
			assert.Equal(t, tc.labels, a.Labels)
			assert.Equal(t, tc.provenance, a.Provenance)
			assert.Equal(t, tc.sources, a.Sources)
		})
	}
}

func TestNeedsModel(t *testing.T) {
	assert.True(t, merge.NeedsModel(clientA, nil))
	assert.False(t, merge.NeedsModel(clientA, &rules.Match{Category: "Audio > Headphones > Wireless"}))
	assert.False(t, merge.NeedsModel(clientA, &rules.Match{Category: "Audio"}))
	assert.True(t, merge.NeedsModel(clientB, &rules.Match{Category: "Apparel"}))
}
