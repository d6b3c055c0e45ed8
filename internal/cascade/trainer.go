package cascade

import (
	"context"
	"errors"
	"fmt"
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

// ErrNothingServable is returned when no stage of a taxonomy could be trained.
var ErrNothingServable = errors.New("no servable stages")

// Stage outcomes.
const (
	StatusTrained = telemetry.OutcomeTrained
	StatusSkipped = telemetry.OutcomeSkipped
)

// StageResult is the outcome of training one stage.
type StageResult struct {
	Name     string
	Status   string
	Version  int
	Examples int
	Labels   []string
	// Dropped lists classes removed by support filtering.
	Dropped  []string
	Reason   string
	Err      error
	Duration time.Duration
}

// TrainReport summarizes one training run of a taxonomy.
type TrainReport struct {
	Taxonomy        string
	RunID           string
	ManifestVersion int
	Stages          []StageResult
	EffectiveDepth  int
}

// Err joins the errors of skipped stages. It is nil when every stage trained.
func (r *TrainReport) Err() error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Trained returns the names of trained stages in order.
func (r *TrainReport) Trained() []string {
	var names []string
	for _, s := range r.Stages {
		if s.Status == StatusTrained {
			names = append(names, s.Name)
		}
	}
	return names
}

// Trainer fits every stage of a taxonomy graph and publishes a manifest.
type Trainer struct {
	graph     taxonomy.Graph
	store     artifact.Store
	opts      Options
	logger    infralogger.Logger
	telemetry *telemetry.Provider
	now       func() time.Time
}

// NewTrainer creates a trainer for graph.
func NewTrainer(
	graph taxonomy.Graph,
	store artifact.Store,
	opts Options,
	logger infralogger.Logger,
	tp *telemetry.Provider,
) *Trainer {
	if logger == nil {
		logger = infralogger.NewNop()
	}
	return &Trainer{
		graph:     graph,
		store:     store,
		opts:      opts.withDefaults(),
		logger:    logger.With(infralogger.Taxonomy(graph.Name)),
		telemetry: tp,
		now:       time.Now,
	}
}

// Train fits the stages in topological order. A stage without enough data is skipped
// and recorded, and stages depending on it are skipped too. The manifest is published
// only after every trained stage is persisted. When no stage can be trained the
// returned error wraps ErrNothingServable and the stage errors, and no manifest is
// written.
func (t *Trainer) Train(ctx context.Context, examples []domain.TrainingExample) (*TrainReport, error) {
	if err := t.graph.Validate(); err != nil {
		return nil, err
	}

	ctx, span := t.telemetry.StartSpan(ctx, "cascade.train", attribute.String("taxonomy", t.graph.Name))
	defer span.End()

	manifest := artifact.NewManifest(t.graph.Name, t.opts.MinSupport, t.now())
	report := &TrainReport{Taxonomy: t.graph.Name, RunID: manifest.RunID}
	trained := make(map[string]*stage.Stage, len(t.graph.Stages))

	for _, spec := range t.graph.Stages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, s, err := t.trainStage(ctx, spec, examples, trained)
		if err != nil {
			return report, err
		}
		report.Stages = append(report.Stages, result)
		t.telemetry.RecordStageTrained(t.graph.Name, spec.Name, result.Status, len(result.Labels), result.Duration)

		if s == nil {
			manifest.Skipped = append(manifest.Skipped, artifact.SkippedStage{Name: spec.Name, Reason: result.Reason})
			continue
		}
		trained[spec.Name] = s
		manifest.Stages = append(manifest.Stages, artifact.StageRef{
			Name:     spec.Name,
			Version:  result.Version,
			Labels:   result.Labels,
			Features: s.Contract(),
			Examples: result.Examples,
		})
	}

	report.EffectiveDepth = t.graph.EffectiveDepth(report.Trained())
	manifest.EffectiveDepth = report.EffectiveDepth

	if len(manifest.Stages) == 0 {
		return report, fmt.Errorf("taxonomy %s: %w: %w", t.graph.Name, ErrNothingServable, report.Err())
	}

	version, err := artifact.PublishManifest(ctx, t.store, manifest)
	if err != nil {
		return report, err
	}
	report.ManifestVersion = version

	t.logger.Info("Training run complete",
		infralogger.String("run_id", manifest.RunID),
		infralogger.Int("manifest_version", version),
		infralogger.Strings("trained", report.Trained()),
		infralogger.Int("effective_depth", report.EffectiveDepth),
	)
	return report, nil
}

// trainStage returns a nil stage and a skipped result when the stage cannot be trained.
// The error return is reserved for failures that abort the run.
func (t *Trainer) trainStage(
	ctx context.Context,
	spec taxonomy.StageSpec,
	examples []domain.TrainingExample,
	trained map[string]*stage.Stage,
) (StageResult, *stage.Stage, error) {
	start := time.Now()
	result := StageResult{Name: spec.Name, Status: StatusSkipped}
	log := t.logger.With(infralogger.Stage(spec.Name))

	upstream := make(chain, 0, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		s, ok := trained[dep]
		if !ok {
			result.Reason = fmt.Sprintf("upstream stage %s was not trained", dep)
			result.Duration = time.Since(start)
			log.Warn("Skipping stage", infralogger.String("reason", result.Reason))
			return result, nil, nil
		}
		upstream = append(upstream, s)
	}

	rows, labels := t.labeledRows(spec.Name, examples)
	base := make([]stage.Example, len(rows))
	for i := range rows {
		base[i] = stage.Example{Row: rows[i], Label: labels[i]}
	}
	kept, dropped, _ := stage.FilterSupport(base, t.opts.MinSupport)

	fitExamples, err := t.withUpstream(kept, upstream)
	if err != nil {
		return result, nil, fmt.Errorf("predict upstream for %s/%s: %w", t.graph.Name, spec.Name, err)
	}

	s, err := stage.Fit(stage.Spec{
		Taxonomy: t.graph.Name,
		Name:     spec.Name,
		Upstream: spec.DependsOn,
		Options:  t.opts.Stage,
	}, fitExamples, t.opts.MinSupport)
	if err != nil {
		var insufficient *domain.InsufficientDataError
		if !errors.As(err, &insufficient) {
			return result, nil, fmt.Errorf("fit %s/%s: %w", t.graph.Name, spec.Name, err)
		}
		insufficient.Dropped = dropped
		result.Err = insufficient
		result.Reason = insufficient.Error()
		result.Examples = insufficient.Examples
		result.Dropped = insufficient.Dropped
		result.Duration = time.Since(start)
		log.Warn("Skipping stage",
			infralogger.Int("examples", insufficient.Examples),
			infralogger.Int("classes", insufficient.Classes),
			infralogger.Strings("dropped_classes", insufficient.Dropped),
		)
		return result, nil, nil
	}

	version, err := s.Persist(ctx, t.store)
	if err != nil {
		return result, nil, err
	}

	result.Status = StatusTrained
	result.Version = version
	result.Examples = s.Metadata().Examples
	result.Labels = s.Labels()
	result.Dropped = dropped
	result.Duration = time.Since(start)

	log.Info("Stage trained",
		infralogger.Int("version", version),
		infralogger.Int("examples", result.Examples),
		infralogger.Int("classes", len(result.Labels)),
		infralogger.Strings("dropped_classes", result.Dropped),
	)
	return result, s, nil
}

// labeledRows returns the rows whose ground truth for stageName is a real label.
func (t *Trainer) labeledRows(stageName string, examples []domain.TrainingExample) ([]features.Row, []string) {
	var (
		rows   []features.Row
		labels []string
	)
	for _, ex := range examples {
		label := ex.LabelFor(t.graph.Name, stageName)
		if taxonomy.IsSentinel(label) {
			continue
		}
		rows = append(rows, features.Row{Text: ex.CombinedText, Price: ex.Price})
		labels = append(labels, label)
	}
	return rows, labels
}

// withUpstream re-runs the trained upstream stages over the examples and attaches their
// predictions as features. Ground-truth upstream labels are never used.
func (t *Trainer) withUpstream(examples []stage.Example, upstream chain) ([]stage.Example, error) {
	if len(upstream) == 0 || len(examples) == 0 {
		return examples, nil
	}

	batch := features.Batch{
		Columns: []string{features.TextFeature, features.PriceFeature},
		Rows:    make([]features.Row, len(examples)),
	}
	for i, ex := range examples {
		batch.Rows[i] = ex.Row
	}

	predictions, err := upstream.run(batch, nil)
	if err != nil {
		return nil, err
	}

	out := make([]stage.Example, len(examples))
	for i, ex := range examples {
		row := features.Row{Text: ex.Row.Text, Price: ex.Row.Price, Upstream: make(map[string]string, len(upstream))}
		for _, s := range upstream {
			row.Upstream[features.UpstreamFeature(s.Name())] = predictions[s.Name()][i]
		}
		out[i] = stage.Example{Row: row, Label: ex.Label}
	}
	return out, nil
}
