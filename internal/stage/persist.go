package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/artifact"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
)

// artifactFormat identifies the document layout.
const artifactFormat = "multinomial-nb/v1"

type document struct {
	Format   string            `json:"format"`
	Taxonomy string            `json:"taxonomy"`
	Stage    string            `json:"stage"`
	Contract features.Contract `json:"contract"`
	Encoder  features.Encoder  `json:"encoder"`
	Model    *naiveBayes       `json:"model"`
	Metadata Metadata          `json:"metadata"`
}

// Key returns the artifact key the stage is stored under.
func (s *Stage) Key() artifact.Key {
	return artifact.Key{Taxonomy: s.taxonomy, Stage: s.name}
}

// Persist writes the stage as a new artifact version and returns it.
func (s *Stage) Persist(ctx context.Context, store artifact.Store) (int, error) {
	payload, err := json.Marshal(document{
		Format:   artifactFormat,
		Taxonomy: s.taxonomy,
		Stage:    s.name,
		Contract: s.encoder.Contract,
		Encoder:  s.encoder,
		Model:    s.model,
		Metadata: s.meta,
	})
	if err != nil {
		return 0, fmt.Errorf("encode stage %s: %w", s.Key(), err)
	}

	version, err := store.Put(ctx, s.Key(), payload)
	if err != nil {
		return 0, fmt.Errorf("persist stage %s: %w", s.Key(), err)
	}
	s.version = version
	return version, nil
}

// Load reads a stage version (or artifact.Latest). Missing artifacts yield
// *domain.ArtifactNotFoundError.
func Load(ctx context.Context, store artifact.Store, key artifact.Key, version int) (*Stage, error) {
	payload, resolved, err := store.Get(ctx, key, version)
	if err != nil {
		var notFound *domain.ArtifactNotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load stage %s: %w", key, err)
	}

	var doc document
	if err = json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode stage %s v%d: %w", key, resolved, err)
	}
	if err = doc.validate(key); err != nil {
		return nil, fmt.Errorf("stage %s v%d: %w", key, resolved, err)
	}
	doc.Model.buildIndex()

	return &Stage{
		taxonomy: doc.Taxonomy,
		name:     doc.Stage,
		encoder:  doc.Encoder,
		model:    doc.Model,
		meta:     doc.Metadata,
		version:  resolved,
	}, nil
}

func (d document) validate(key artifact.Key) error {
	if d.Format != artifactFormat {
		return fmt.Errorf("unsupported artifact format %q", d.Format)
	}
	if d.Taxonomy != key.Taxonomy || d.Stage != key.Stage {
		return fmt.Errorf("artifact belongs to %s/%s", d.Taxonomy, d.Stage)
	}
	if !slices.Equal(d.Contract, d.Encoder.Contract) {
		return errors.New("contract does not match encoder")
	}
	if d.Model == nil || len(d.Model.Labels) == 0 {
		return errors.New("artifact has no model")
	}
	if len(d.Model.LogPriors) != len(d.Model.Labels) || len(d.Model.LogProbs) != len(d.Model.Labels) {
		return errors.New("model parameters do not match its labels")
	}
	for _, row := range d.Model.LogProbs {
		if len(row) != len(d.Model.Vocabulary) {
			return errors.New("model parameters do not match its vocabulary")
		}
	}
	return nil
}
