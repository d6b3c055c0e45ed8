package dataprep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/telemetry"
)

// Input column names.
const (
	ColumnID    = "product_id"
	ColumnName  = "product_name"
	ColumnAbout = "about_product"
	ColumnPrice = "actual_price"
)

// Reason explains why a row was dropped.
type Reason string

// Drop reasons.
const (
	ReasonInvalidPrice Reason = "invalid_price"
	ReasonMissingName  Reason = "missing_name"
	ReasonDuplicateID  Reason = "duplicate_id"
)

// truthColumns lists the accepted header spellings of each ground-truth column. The
// misspelled "Catgories" appears in real exports.
var truthColumns = []struct {
	taxonomy string
	stage    string // empty for the composite Client A category
	aliases  []string
}{
	{taxonomy.ClientA, "", []string{"client_a_category", "Client A Categories", "Client A Catgories"}},
	{taxonomy.ClientB, taxonomy.StageDepartment, []string{"client_b_department", "Client B department"}},
	{taxonomy.ClientB, taxonomy.StagePriceTier, []string{"client_b_price_tier", "Client b Price Tier"}},
}

// Drop records one rejected row. Row is the 1-based data row number.
type Drop struct {
	Row    int
	ID     string
	Reason Reason
	Detail string
}

// Report counts what preparation kept and dropped.
type Report struct {
	Rows  int
	Kept  int
	Drops []Drop
}

// Dropped returns the number of drops per reason.
func (r *Report) Dropped() map[Reason]int {
	counts := make(map[Reason]int)
	for _, d := range r.Drops {
		counts[d.Reason]++
	}
	return counts
}

// Reasons returns the reasons present in the report, sorted.
func (r *Report) Reasons() []Reason {
	counts := r.Dropped()
	out := make([]Reason, 0, len(counts))
	for reason := range counts {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Preparer cleans tables into products.
type Preparer struct {
	hierarchy taxonomy.Hierarchy
	logger    infralogger.Logger
	telemetry *telemetry.Provider
}

// NewPreparer creates a preparer. The hierarchy parses Client A ground-truth categories.
func NewPreparer(h taxonomy.Hierarchy, logger infralogger.Logger, tp *telemetry.Provider) *Preparer {
	if logger == nil {
		logger = infralogger.NewNop()
	}
	return &Preparer{hierarchy: h, logger: logger, telemetry: tp}
}

type columnIndex map[string]int

func headerKey(name string) string {
	return features.Normalize(name)
}

func indexHeader(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		key := headerKey(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (c columnIndex) find(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := c[headerKey(a)]; ok {
			return i, true
		}
	}
	return -1, false
}

// Products cleans every row of t. Rows with an unparseable price or no name are dropped
// and recorded, as are repeated product ids after their first occurrence.
func (p *Preparer) Products(t *Table) ([]domain.Product, *Report, error) {
	products, _, report, err := p.prepare(t)
	return products, report, err
}

// Examples cleans t and attaches the ground truth of every taxonomy whose columns are
// present. At least one ground-truth column is required.
func (p *Preparer) Examples(t *Table) ([]domain.TrainingExample, *Report, error) {
	products, rowIdx, report, err := p.prepare(t)
	if err != nil {
		return nil, nil, err
	}

	cols := indexHeader(t.Header)
	type located struct {
		taxonomy, stage string
		col             int
	}
	var present []located
	for _, tc := range truthColumns {
		if col, ok := cols.find(tc.aliases...); ok {
			present = append(present, located{tc.taxonomy, tc.stage, col})
		}
	}
	if len(present) == 0 {
		return nil, nil, fmt.Errorf("input has no ground-truth columns (expected one of %s)", strings.Join(truthColumns[0].aliases, ", "))
	}

	examples := make([]domain.TrainingExample, len(products))
	for i, product := range products {
		truth := make(map[string]domain.Labels)
		for _, loc := range present {
			raw := strings.TrimSpace(t.Cell(rowIdx[i], loc.col))
			labels := truth[loc.taxonomy]
			if labels == nil {
				labels = make(domain.Labels)
				truth[loc.taxonomy] = labels
			}
			if loc.stage == "" {
				path := p.hierarchy.Parse(raw)
				for k, label := range path {
					labels[taxonomy.LevelStage(k+1)] = label
				}
				continue
			}
			if taxonomy.IsSentinel(raw) {
				raw = taxonomy.NotApplicable
			}
			labels[loc.stage] = raw
		}
		examples[i] = domain.TrainingExample{Product: product, Truth: truth}
	}
	return examples, report, nil
}

func (p *Preparer) prepare(t *Table) ([]domain.Product, []int, *Report, error) {
	cols := indexHeader(t.Header)
	nameCol, ok := cols.find(ColumnName)
	if !ok {
		return nil, nil, nil, fmt.Errorf("input is missing required column %q", ColumnName)
	}
	priceCol, ok := cols.find(ColumnPrice)
	if !ok {
		return nil, nil, nil, fmt.Errorf("input is missing required column %q", ColumnPrice)
	}
	idCol, hasID := cols.find(ColumnID)
	aboutCol, hasAbout := cols.find(ColumnAbout)

	report := &Report{Rows: len(t.Rows)}
	products := make([]domain.Product, 0, len(t.Rows))
	rowIdx := make([]int, 0, len(t.Rows))
	seen := make(map[string]bool, len(t.Rows))

	for r := range t.Rows {
		id := ""
		if hasID {
			id = strings.TrimSpace(t.Cell(r, idCol))
		}
		if id == "" {
			id = fmt.Sprintf("row-%d", r+1)
		}

		if seen[id] {
			report.Drops = append(report.Drops, Drop{Row: r + 1, ID: id, Reason: ReasonDuplicateID})
			continue
		}

		name := strings.TrimSpace(t.Cell(r, nameCol))
		if name == "" {
			report.Drops = append(report.Drops, Drop{Row: r + 1, ID: id, Reason: ReasonMissingName})
			continue
		}

		price, err := ParsePrice(t.Cell(r, priceCol))
		if err != nil {
			report.Drops = append(report.Drops, Drop{Row: r + 1, ID: id, Reason: ReasonInvalidPrice, Detail: err.Error()})
			continue
		}

		var about *string
		if hasAbout {
			if a := strings.TrimSpace(t.Cell(r, aboutCol)); a != "" {
				about = &a
			}
		}

		seen[id] = true
		products = append(products, domain.Product{
			ID:           id,
			Name:         name,
			About:        about,
			Price:        price,
			CombinedText: CombinedText(name, about),
		})
		rowIdx = append(rowIdx, r)
	}
	report.Kept = len(products)

	for reason, n := range report.Dropped() {
		p.telemetry.RecordRowsDropped(string(reason), n)
	}
	p.logger.Info("Input prepared",
		infralogger.Int("rows", report.Rows),
		infralogger.Int("kept", report.Kept),
		infralogger.Int("dropped", len(report.Drops)),
	)

	return products, rowIdx, report, nil
}
