// Package stage implements one trainable classifier of a cascade: a named feature
// contract, a deterministic model and its persisted artifact.
package stage

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
)

// DefaultMinSupport is the minimum number of examples a class needs to be learned.
const DefaultMinSupport = 2

// minTrainable is the fewest examples and classes a stage can be fit on.
const minTrainable = 2

// Options tune the model.
type Options struct {
	// Smoothing is the Laplace pseudo-count added to every term.
	Smoothing float64
	// BalancedPriors gives every class the same prior instead of its frequency.
	BalancedPriors bool
	PriceBins      int
}

// DefaultOptions returns Laplace smoothing, balanced priors and the default price bins.
func DefaultOptions() Options {
	return Options{Smoothing: 1, BalancedPriors: true, PriceBins: features.DefaultPriceBins}
}

func (o Options) withDefaults() Options {
	if o.Smoothing <= 0 {
		o.Smoothing = 1
	}
	if o.PriceBins <= 0 {
		o.PriceBins = features.DefaultPriceBins
	}
	return o
}

// Spec describes a stage before training.
type Spec struct {
	Taxonomy string
	Name     string
	// Upstream lists the stages whose predictions this stage consumes.
	Upstream []string
	Options  Options
}

// Example is one training row.
type Example struct {
	Row   features.Row
	Label string
}

// Metadata describes the data a stage was trained on.
type Metadata struct {
	Examples  int            `json:"examples"`
	Support   map[string]int `json:"support"`
	Dropped   []string       `json:"dropped_classes,omitempty"`
	TrainedAt time.Time      `json:"trained_at"`
}

// Stage is a trained classifier. It is immutable and safe for concurrent Predict calls.
type Stage struct {
	taxonomy string
	name     string
	encoder  features.Encoder
	model    *naiveBayes
	meta     Metadata
	version  int
}

// FilterSupport drops examples whose label has fewer than minSupport occurrences. It
// returns the kept examples in their original order, the dropped labels sorted, and the
// per-label counts before filtering.
func FilterSupport(examples []Example, minSupport int) ([]Example, []string, map[string]int) {
	if minSupport < 1 {
		minSupport = 1
	}
	support := make(map[string]int)
	for _, ex := range examples {
		support[ex.Label]++
	}

	var dropped []string
	for label, n := range support {
		if n < minSupport {
			dropped = append(dropped, label)
		}
	}
	sort.Strings(dropped)

	kept := make([]Example, 0, len(examples))
	for _, ex := range examples {
		if support[ex.Label] >= minSupport {
			kept = append(kept, ex)
		}
	}
	return kept, dropped, support
}

// Fit applies support filtering and trains the stage. It returns
// *domain.InsufficientDataError when fewer than two examples or two classes survive.
func Fit(spec Spec, examples []Example, minSupport int) (*Stage, error) {
	if spec.Taxonomy == "" || spec.Name == "" {
		return nil, fmt.Errorf("stage spec needs a taxonomy and a name, got %q/%q", spec.Taxonomy, spec.Name)
	}
	opts := spec.Options.withDefaults()

	kept, dropped, support := FilterSupport(examples, minSupport)

	labels := make([]string, len(kept))
	rows := make([]features.Row, len(kept))
	for i, ex := range kept {
		labels[i] = ex.Label
		rows[i] = ex.Row
	}
	classes := sortedUnique(labels)

	if len(kept) < minTrainable || len(classes) < minTrainable {
		return nil, &domain.InsufficientDataError{
			Taxonomy: spec.Taxonomy,
			Stage:    spec.Name,
			Examples: len(kept),
			Classes:  len(classes),
			Dropped:  dropped,
		}
	}

	contract := features.NewContract(spec.Upstream)
	encoder := features.FitEncoder(contract, rows, opts.PriceBins)

	docs := make([][]features.Term, len(rows))
	for i, row := range rows {
		docs[i] = encoder.Encode(row)
	}

	keptSupport := make(map[string]int, len(classes))
	for _, c := range classes {
		keptSupport[c] = support[c]
	}

	return &Stage{
		taxonomy: spec.Taxonomy,
		name:     spec.Name,
		encoder:  encoder,
		model:    fitNaiveBayes(docs, labels, opts),
		meta: Metadata{
			Examples:  len(kept),
			Support:   keptSupport,
			Dropped:   dropped,
			TrainedAt: time.Now().UTC(),
		},
	}, nil
}

// Predict labels every row of batch. A batch lacking any contract feature is rejected
// with *domain.FeatureContractMismatchError.
func (s *Stage) Predict(batch features.Batch) ([]string, error) {
	if missing := s.encoder.Contract.Missing(batch.Columns); len(missing) > 0 {
		return nil, &domain.FeatureContractMismatchError{Stage: s.name, Missing: missing}
	}
	out := make([]string, len(batch.Rows))
	for i, row := range batch.Rows {
		out[i] = s.model.predict(s.encoder.Encode(row))
	}
	return out, nil
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Taxonomy returns the taxonomy the stage belongs to.
func (s *Stage) Taxonomy() string { return s.taxonomy }

// Labels returns the output label space, sorted.
func (s *Stage) Labels() []string { return slices.Clone(s.model.Labels) }

// Contract returns the feature names the stage was trained on.
func (s *Stage) Contract() features.Contract { return slices.Clone(s.encoder.Contract) }

// Metadata returns training statistics.
func (s *Stage) Metadata() Metadata { return s.meta }

// Version is the artifact version after Persist or Load, and 0 before.
func (s *Stage) Version() int { return s.version }
