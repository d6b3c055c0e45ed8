package cascade

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/artifact"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/stage"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/telemetry"
)

// Predictor serves the stage versions pinned by one manifest. It is read-only and safe
// for concurrent use.
type Predictor struct {
	graph     taxonomy.Graph
	manifest  *artifact.Manifest
	stages    chain
	workers   int
	logger    infralogger.Logger
	telemetry *telemetry.Provider
}

// LoadPredictor loads the latest manifest for graph and every stage version it lists.
// A missing manifest, a missing stage artifact, or a manifest that does not fit the
// graph is reported as *domain.ArtifactNotFoundError. A stage consuming a prediction no
// earlier stage in the manifest produces is reported as
// *domain.FeatureContractMismatchError.
func LoadPredictor(
	ctx context.Context,
	graph taxonomy.Graph,
	store artifact.Store,
	opts Options,
	logger infralogger.Logger,
	tp *telemetry.Provider,
) (*Predictor, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = infralogger.NewNop()
	}
	opts = opts.withDefaults()

	manifest, err := artifact.LoadManifest(ctx, store, graph.Name, artifact.Latest)
	if err != nil {
		return nil, err
	}
	if err = checkManifest(graph, manifest); err != nil {
		return nil, err
	}

	stages := make(chain, 0, len(manifest.Stages))
	produced := make([]string, 0, len(manifest.Stages))
	for _, ref := range manifest.Stages {
		s, loadErr := stage.Load(ctx, store, artifact.Key{Taxonomy: graph.Name, Stage: ref.Name}, ref.Version)
		if loadErr != nil {
			return nil, fmt.Errorf("manifest v%d of %s: %w", manifest.Version, graph.Name, loadErr)
		}
		var missing []string
		for _, name := range s.Contract().Upstream() {
			if !slices.Contains(produced, name) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("manifest v%d of %s: %w", manifest.Version, graph.Name,
				&domain.FeatureContractMismatchError{Stage: ref.Name, Missing: missing})
		}
		stages = append(stages, s)
		produced = append(produced, features.UpstreamFeature(s.Name()))
	}

	log := logger.With(infralogger.Taxonomy(graph.Name))
	log.Info("Predictor loaded",
		infralogger.Int("manifest_version", manifest.Version),
		infralogger.String("run_id", manifest.RunID),
		infralogger.Strings("stages", manifest.StageNames()),
		infralogger.Int("effective_depth", manifest.EffectiveDepth),
	)

	return &Predictor{
		graph:     graph,
		manifest:  manifest,
		stages:    stages,
		workers:   opts.Workers,
		logger:    log,
		telemetry: tp,
	}, nil
}

// checkManifest verifies that the manifest's stages are graph stages, listed in graph
// order, with every dependency trained before them.
func checkManifest(graph taxonomy.Graph, m *artifact.Manifest) error {
	trained := make(map[string]bool, len(m.Stages))
	next := 0
	for _, ref := range m.Stages {
		pos := -1
		for i := next; i < len(graph.Stages); i++ {
			if graph.Stages[i].Name == ref.Name {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("manifest v%d lists stage %q out of graph order: %w",
				m.Version, ref.Name, &domain.ArtifactNotFoundError{Taxonomy: graph.Name, Stage: ref.Name, Version: ref.Version})
		}
		for _, dep := range graph.Stages[pos].DependsOn {
			if !trained[dep] {
				return fmt.Errorf("manifest v%d has stage %q without its upstream %q: %w",
					m.Version, ref.Name, dep, &domain.ArtifactNotFoundError{Taxonomy: graph.Name, Stage: dep})
			}
		}
		trained[ref.Name] = true
		next = pos + 1
	}
	return nil
}

// Manifest returns the manifest the predictor serves.
func (p *Predictor) Manifest() *artifact.Manifest {
	return p.manifest
}

// Graph returns the taxonomy graph.
func (p *Predictor) Graph() taxonomy.Graph {
	return p.graph
}

// EffectiveDepth is the number of leading stages that can be predicted.
func (p *Predictor) EffectiveDepth() int {
	return p.manifest.EffectiveDepth
}

type shard struct {
	lo, hi int
}

// Predict labels every product. Results are aligned with products. Stages that were not
// trained yield taxonomy.Unknown.
func (p *Predictor) Predict(ctx context.Context, products []domain.Product) ([]domain.Labels, error) {
	results := make([]domain.Labels, len(products))
	if len(products) == 0 {
		return results, nil
	}

	ctx, span := p.telemetry.StartSpan(ctx, "cascade.predict",
		attribute.String("taxonomy", p.graph.Name),
		attribute.Int("rows", len(products)),
	)
	defer span.End()

	workers := min(p.workers, len(products))
	size := (len(products) + workers - 1) / workers

	jobs := make(chan shard, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := ctx.Err(); err != nil {
					errs[w] = err
					continue
				}
				if err := p.predictShard(products, job, results); err != nil && errs[w] == nil {
					errs[w] = err
				}
			}
		}()
	}

	for lo := 0; lo < len(products); lo += size {
		jobs <- shard{lo: lo, hi: min(lo+size, len(products))}
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", p.graph.Name, err)
		}
	}

	p.logger.Debug("Batch predicted",
		infralogger.Int("rows", len(products)),
		infralogger.Int("workers", workers),
	)
	return results, nil
}

// predictShard runs the full stage order over products[job.lo:job.hi] and writes the
// labels into results at the same indices.
func (p *Predictor) predictShard(products []domain.Product, job shard, results []domain.Labels) error {
	batch := features.NewBatch(products[job.lo:job.hi])
	predictions, err := p.stages.run(batch, func(name string, rows int, d time.Duration) {
		p.telemetry.RecordStagePrediction(p.graph.Name, name, rows, d)
	})
	if err != nil {
		return err
	}

	for i := range batch.Rows {
		labels := make(domain.Labels, len(p.graph.Stages))
		for _, spec := range p.graph.Stages {
			if preds, ok := predictions[spec.Name]; ok {
				labels[spec.Name] = preds[i]
			} else {
				labels[spec.Name] = taxonomy.Unknown
			}
		}
		results[job.lo+i] = labels
	}
	return nil
}
