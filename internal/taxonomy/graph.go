package taxonomy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
)

// Taxonomy names.
const (
	ClientA = "client_a"
	ClientB = "client_b"
)

// Stage names.
const (
	StageLevel1     = "level_1"
	StageLevel2     = "level_2"
	StageLevel3     = "level_3"
	StageDepartment = "department"
	StagePriceTier  = "price_tier"
)

// ReservedStageName is used by the artifact store for training manifests.
const ReservedStageName = "manifest"

// StageSpec names a stage and the upstream stages whose predictions it consumes.
type StageSpec struct {
	Name      string
	DependsOn []string
}

// Graph is a taxonomy's stages in topological order.
type Graph struct {
	Name   string
	Stages []StageSpec
	// Hierarchy is set for taxonomies whose stages are the levels of a composite category.
	Hierarchy *Hierarchy
}

// NewClientAGraph builds the linear cascade level_1 -> level_2 -> level_3. Each level
// consumes the predictions of every level above it.
func NewClientAGraph(h Hierarchy) Graph {
	stages := make([]StageSpec, 0, h.Depth)
	for k := 1; k <= h.Depth; k++ {
		spec := StageSpec{Name: LevelStage(k)}
		for j := 1; j < k; j++ {
			spec.DependsOn = append(spec.DependsOn, LevelStage(j))
		}
		stages = append(stages, spec)
	}
	return Graph{Name: ClientA, Stages: stages, Hierarchy: &h}
}

// NewClientBGraph builds the two independent facets.
func NewClientBGraph() Graph {
	return Graph{
		Name: ClientB,
		Stages: []StageSpec{
			{Name: StageDepartment},
			{Name: StagePriceTier},
		},
	}
}

// Hierarchical reports whether the stages are the levels of a composite category.
func (g Graph) Hierarchical() bool {
	return g.Hierarchy != nil
}

// LevelStage returns the stage name for hierarchy level k (1-based).
func LevelStage(k int) string {
	return fmt.Sprintf("level_%d", k)
}

// StageNames returns the stage names in order.
func (g Graph) StageNames() []string {
	names := make([]string, len(g.Stages))
	for i, s := range g.Stages {
		names[i] = s.Name
	}
	return names
}

// Stage looks up a stage by name.
func (g Graph) Stage(name string) (StageSpec, bool) {
	for _, s := range g.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageSpec{}, false
}

// Validate checks that stage names are unique and every dependency precedes its dependent.
func (g Graph) Validate() error {
	if g.Name == "" {
		return errors.New("taxonomy graph has no name")
	}
	if len(g.Stages) == 0 {
		return fmt.Errorf("taxonomy %s has no stages", g.Name)
	}
	if g.Hierarchy != nil && g.Hierarchy.Depth != len(g.Stages) {
		return fmt.Errorf("taxonomy %s: hierarchy depth %d does not match %d stages",
			g.Name, g.Hierarchy.Depth, len(g.Stages))
	}

	seen := make(map[string]bool, len(g.Stages))
	for _, s := range g.Stages {
		if s.Name == "" || s.Name == ReservedStageName {
			return fmt.Errorf("taxonomy %s: invalid stage name %q", g.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("taxonomy %s: duplicate stage %q", g.Name, s.Name)
		}
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return fmt.Errorf("taxonomy %s: stage %q depends on itself", g.Name, s.Name)
			}
			if !seen[dep] {
				return fmt.Errorf("taxonomy %s: stage %q depends on %q which is not declared before it",
					g.Name, s.Name, dep)
			}
		}
		seen[s.Name] = true
	}
	return nil
}

// Category renders labels as the taxonomy's category string: the composite path for
// hierarchies, the first facet for flat taxonomies.
func (g Graph) Category(labels domain.Labels) string {
	if g.Hierarchy != nil {
		path := make(Path, len(g.Stages))
		for i, s := range g.Stages {
			path[i] = labels[s.Name]
		}
		return g.Hierarchy.Format(path)
	}
	if len(g.Stages) == 0 {
		return ""
	}
	return labels[g.Stages[0].Name]
}

// LabelsFromCategory is the inverse of Category. For flat taxonomies only the first facet
// is set.
func (g Graph) LabelsFromCategory(category string) domain.Labels {
	labels := make(domain.Labels, len(g.Stages))
	if g.Hierarchy != nil {
		path := g.Hierarchy.Parse(category)
		for i, s := range g.Stages {
			labels[s.Name] = path[i]
		}
		return labels
	}
	if len(g.Stages) > 0 && !IsSentinel(category) {
		labels[g.Stages[0].Name] = category
	}
	return labels
}

// EffectiveDepth counts leading stages present in trained. For flat taxonomies it is the
// number of trained stages.
func (g Graph) EffectiveDepth(trained []string) int {
	if g.Hierarchy == nil {
		n := 0
		for _, s := range g.Stages {
			if slices.Contains(trained, s.Name) {
				n++
			}
		}
		return n
	}
	for i, s := range g.Stages {
		if !slices.Contains(trained, s.Name) {
			return i
		}
	}
	return len(g.Stages)
}
