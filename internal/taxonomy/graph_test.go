package taxonomy_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientAGraph(t *testing.T) {
	g := taxonomy.NewClientAGraph(taxonomy.NewHierarchy("", 3))

	require.NoError(t, g.Validate())
	assert.Equal(t, []string{"level_1", "level_2", "level_3"}, g.StageNames())

	l3, ok := g.Stage(taxonomy.StageLevel3)
	require.True(t, ok)
	assert.Equal(t, []string{"level_1", "level_2"}, l3.DependsOn)

	l1, _ := g.Stage(taxonomy.StageLevel1)
	assert.Empty(t, l1.DependsOn)
}

func TestNewClientBGraph(t *testing.T) {
	g := taxonomy.NewClientBGraph()

	require.NoError(t, g.Validate())
	assert.Nil(t, g.Hierarchy)
	assert.False(t, g.Hierarchical())
	for _, s := range g.Stages {
		assert.Empty(t, s.DependsOn)
	}
}

func TestGraph_Validate(t *testing.T) {
	testCases := []struct {
		name  string
		graph taxonomy.Graph
	}{
		{name: "no name", graph: taxonomy.Graph{Stages: []taxonomy.StageSpec{{Name: "a"}}}},
		{name: "no stages", graph: taxonomy.Graph{Name: "t"}},
		{
			name:  "duplicate",
			graph: taxonomy.Graph{Name: "t", Stages: []taxonomy.StageSpec{{Name: "a"}, {Name: "a"}}},
		},
		{
			name:  "self dependency",
			graph: taxonomy.Graph{Name: "t", Stages: []taxonomy.StageSpec{{Name: "a", DependsOn: []string{"a"}}}},
		},
		{
			name: "out of order",
			graph: taxonomy.Graph{Name: "t", Stages: []taxonomy.StageSpec{
				{Name: "b", DependsOn: []string{"a"}},
				{Name: "a"},
			}},
		},
		{
			name:  "reserved name",
			graph: taxonomy.Graph{Name: "t", Stages: []taxonomy.StageSpec{{Name: taxonomy.ReservedStageName}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.graph.Validate())
		})
	}
}

func TestGraph_CategoryRoundTrip(t *testing.T) {
	a := taxonomy.NewClientAGraph(taxonomy.NewHierarchy("", 3))
	labels := a.LabelsFromCategory("Audio > Headphones > Wireless")
	assert.Equal(t, domain.Labels{"level_1": "Audio", "level_2": "Headphones", "level_3": "Wireless"}, labels)
	assert.Equal(t, "Audio > Headphones > Wireless", a.Category(labels))

	b := taxonomy.NewClientBGraph()
	flat := b.LabelsFromCategory("Electronics")
	assert.Equal(t, domain.Labels{"department": "Electronics"}, flat)
	assert.Equal(t, "Electronics", b.Category(flat))
	assert.Empty(t, b.LabelsFromCategory("None"))
}

func TestGraph_EffectiveDepth(t *testing.T) {
	a := taxonomy.NewClientAGraph(taxonomy.NewHierarchy("", 3))
	assert.Equal(t, 3, a.EffectiveDepth([]string{"level_1", "level_2", "level_3"}))
	assert.Equal(t, 2, a.EffectiveDepth([]string{"level_1", "level_2"}))
	assert.Equal(t, 1, a.EffectiveDepth([]string{"level_1", "level_3"}))
	assert.Equal(t, 0, a.EffectiveDepth(nil))

	b := taxonomy.NewClientBGraph()
	assert.Equal(t, 1, b.EffectiveDepth([]string{"price_tier"}))
}
