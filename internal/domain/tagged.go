package domain

// Provenance records where a taxonomy assignment came from.
type Provenance string

// Provenance values.
const (
	ProvenanceRule  Provenance = "rule"
	ProvenanceModel Provenance = "model"
)

// Assignment is the final decision for one taxonomy.
type Assignment struct {
	// Labels holds one label per stage of the taxonomy graph.
	Labels Labels `json:"labels"`
	// Category is the composite string for hierarchical taxonomies, or the primary facet
	// label for flat ones.
	Category   string     `json:"category"`
	Provenance Provenance `json:"provenance"`
	// Sources records per-stage provenance when a rule set only some facets.
	Sources map[string]Provenance `json:"sources,omitempty"`
	// Rule is the name of the rule that fired, if any.
	Rule string `json:"rule,omitempty"`
}

// TaggedProduct is a product annotated with its final assignment per taxonomy.
type TaggedProduct struct {
	Product
	Assignments map[string]Assignment `json:"assignments"`
}

// Assignment returns the assignment for taxonomy, or the zero value.
func (t TaggedProduct) Assignment(taxonomy string) Assignment {
	return t.Assignments[taxonomy]
}
