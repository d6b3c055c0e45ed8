// Package tagger runs the rule engine and the cascade predictors over a batch of
// products and merges their results per taxonomy.
package tagger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/merge"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/telemetry"
)

// Predictor labels products for one taxonomy. *cascade.Predictor implements it.
type Predictor interface {
	Predict(ctx context.Context, products []domain.Product) ([]domain.Labels, error)
}

// Service tags products in every configured taxonomy.
type Service struct {
	engine     *rules.Engine
	graphs     []taxonomy.Graph
	predictors map[string]Predictor
	logger     infralogger.Logger
	telemetry  *telemetry.Provider
}

// New creates a tagging service. predictors is keyed by taxonomy name; a taxonomy
// without a predictor is decided by rules alone and its other stages are Unknown.
func New(
	engine *rules.Engine,
	graphs []taxonomy.Graph,
	predictors map[string]Predictor,
	logger infralogger.Logger,
	tp *telemetry.Provider,
) *Service {
	if logger == nil {
		logger = infralogger.NewNop()
	}
	return &Service{
		engine:     engine,
		graphs:     graphs,
		predictors: predictors,
		logger:     logger,
		telemetry:  tp,
	}
}

// Tag assigns every product in every taxonomy. Rules are evaluated once per product;
// each taxonomy's model runs concurrently and only over rows a rule left incomplete.
func (s *Service) Tag(ctx context.Context, products []domain.Product) ([]domain.TaggedProduct, error) {
	ctx, span := s.telemetry.StartSpan(ctx, "tagger.tag", attribute.Int("rows", len(products)))
	defer span.End()

	matches := make([]map[string]rules.Match, len(products))
	for i, p := range products {
		matches[i] = s.engine.Match(p.CombinedText)
	}

	assignments := make([][]domain.Assignment, len(s.graphs))
	g, gctx := errgroup.WithContext(ctx)
	for gi, graph := range s.graphs {
		g.Go(func() error {
			out, err := s.tagTaxonomy(gctx, graph, products, matches)
			if err != nil {
				return err
			}
			assignments[gi] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tagged := make([]domain.TaggedProduct, len(products))
	for i, p := range products {
		tp := domain.TaggedProduct{Product: p, Assignments: make(map[string]domain.Assignment, len(s.graphs))}
		for gi, graph := range s.graphs {
			a := assignments[gi][i]
			tp.Assignments[graph.Name] = a
			s.telemetry.RecordTagged(graph.Name, string(a.Provenance))
		}
		tagged[i] = tp
	}
	return tagged, nil
}

func (s *Service) tagTaxonomy(
	ctx context.Context,
	graph taxonomy.Graph,
	products []domain.Product,
	matches []map[string]rules.Match,
) ([]domain.Assignment, error) {
	rulesFor := make([]*rules.Match, len(products))
	var pending []int
	for i := range products {
		if m, ok := matches[i][graph.Name]; ok {
			rulesFor[i] = &m
		}
		if merge.NeedsModel(graph, rulesFor[i]) {
			pending = append(pending, i)
		}
	}

	model := make([]domain.Labels, len(products))
	if len(pending) > 0 {
		predictor, ok := s.predictors[graph.Name]
		if ok {
			subset := make([]domain.Product, len(pending))
			for j, idx := range pending {
				subset[j] = products[idx]
			}
			labels, err := predictor.Predict(ctx, subset)
			if err != nil {
				return nil, fmt.Errorf("tag %s: %w", graph.Name, err)
			}
			for j, idx := range pending {
				model[idx] = labels[j]
			}
		} else {
			s.logger.Warn("No model loaded; rule-less rows are Unknown",
				infralogger.Taxonomy(graph.Name),
				infralogger.Int("rows", len(pending)),
			)
		}
	}

	out := make([]domain.Assignment, len(products))
	ruleHits := 0
	for i := range products {
		out[i] = merge.Merge(graph, rulesFor[i], model[i])
		if rulesFor[i] != nil {
			ruleHits++
		}
	}

	s.logger.Info("Taxonomy tagged",
		infralogger.Taxonomy(graph.Name),
		infralogger.Int("rows", len(products)),
		infralogger.Int("rule_hits", ruleHits),
		infralogger.Int("model_rows", len(pending)),
	)
	return out, nil
}
