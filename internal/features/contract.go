// Package features assembles the named feature columns classifier stages consume and
// encodes rows into weighted tokens.
package features

import (
	"maps"
	"slices"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
)

// Base feature names, matching the catalog column names.
const (
	TextFeature  = "combined_text"
	PriceFeature = "actual_price"
)

const upstreamPrefix = "predicted_"

// UpstreamFeature names the feature carrying an upstream stage's prediction.
func UpstreamFeature(stage string) string {
	return upstreamPrefix + stage
}

// Contract is the ordered list of feature names a stage is trained on.
type Contract []string

// NewContract returns text + price followed by one feature per upstream stage.
func NewContract(upstream []string) Contract {
	c := Contract{TextFeature, PriceFeature}
	for _, stage := range upstream {
		c = append(c, UpstreamFeature(stage))
	}
	return c
}

// Missing returns contract features absent from columns, in contract order.
func (c Contract) Missing(columns []string) []string {
	var missing []string
	for _, name := range c {
		if !slices.Contains(columns, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Upstream returns the upstream feature names in the contract.
func (c Contract) Upstream() []string {
	var out []string
	for _, name := range c {
		if name != TextFeature && name != PriceFeature {
			out = append(out, name)
		}
	}
	return out
}

// Row is one product's feature values.
type Row struct {
	Text  string
	Price float64
	// Upstream holds predicted labels keyed by feature name.
	Upstream map[string]string
}

// Batch is a set of rows plus the columns they carry.
type Batch struct {
	Columns []string
	Rows    []Row
}

// NewBatch builds a text + price batch from products.
func NewBatch(products []domain.Product) Batch {
	rows := make([]Row, len(products))
	for i, p := range products {
		rows[i] = Row{Text: p.CombinedText, Price: p.Price}
	}
	return Batch{Columns: []string{TextFeature, PriceFeature}, Rows: rows}
}

// Len returns the number of rows.
func (b Batch) Len() int {
	return len(b.Rows)
}

// WithUpstream returns a copy of b with a predicted-label column for stage added.
// labels must be aligned with b.Rows.
func (b Batch) WithUpstream(stage string, labels []string) Batch {
	name := UpstreamFeature(stage)
	out := Batch{
		Columns: append(slices.Clone(b.Columns), name),
		Rows:    make([]Row, len(b.Rows)),
	}
	for i, row := range b.Rows {
		upstream := make(map[string]string, len(row.Upstream)+1)
		maps.Copy(upstream, row.Upstream)
		upstream[name] = labels[i]
		out.Rows[i] = Row{Text: row.Text, Price: row.Price, Upstream: upstream}
	}
	return out
}
