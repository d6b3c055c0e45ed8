package tagger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/artifact"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/cascade"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/telemetry"
)

// TrainAll trains every graph concurrently against the same store. Each trainer reads
// only its own taxonomy's labels and writes only its own keys. A taxonomy that fails
// does not stop the others; its report is still returned when one was produced, and
// the errors are joined.
func TrainAll(
	ctx context.Context,
	graphs []taxonomy.Graph,
	store artifact.Store,
	opts cascade.Options,
	examples []domain.TrainingExample,
	logger infralogger.Logger,
	tp *telemetry.Provider,
) (map[string]*cascade.TrainReport, error) {
	var (
		mu      sync.Mutex
		reports = make(map[string]*cascade.TrainReport, len(graphs))
		errs    = make([]error, len(graphs))
	)

	var g errgroup.Group
	for i, graph := range graphs {
		g.Go(func() error {
			report, err := cascade.NewTrainer(graph, store, opts, logger, tp).Train(ctx, examples)
			if report != nil {
				mu.Lock()
				reports[graph.Name] = report
				mu.Unlock()
			}
			if err != nil {
				errs[i] = fmt.Errorf("train %s: %w", graph.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

// LoadPredictors loads the latest manifest of every graph. Any missing artifact fails
// the whole load.
func LoadPredictors(
	ctx context.Context,
	graphs []taxonomy.Graph,
	store artifact.Store,
	opts cascade.Options,
	logger infralogger.Logger,
	tp *telemetry.Provider,
) (map[string]Predictor, error) {
	loaded := make([]*cascade.Predictor, len(graphs))
	g, gctx := errgroup.WithContext(ctx)
	for i, graph := range graphs {
		g.Go(func() error {
			p, err := cascade.LoadPredictor(gctx, graph, store, opts, logger, tp)
			if err != nil {
				return fmt.Errorf("load %s: %w", graph.Name, err)
			}
			loaded[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Predictor, len(graphs))
	for i, graph := range graphs {
		out[graph.Name] = loaded[i]
	}
	return out, nil
}
