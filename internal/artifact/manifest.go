package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
)

// ManifestStage is the stage name manifests are stored under.
const ManifestStage = "manifest"

// StageRef pins one trained stage version.
type StageRef struct {
	Name     string   `json:"name"`
	Version  int      `json:"version"`
	Labels   []string `json:"labels"`
	Features []string `json:"features"`
	Examples int      `json:"examples"`
}

// SkippedStage records a stage that could not be trained.
type SkippedStage struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Manifest pins the stage versions produced by one training run of a taxonomy.
// Predictors load exactly these versions.
type Manifest struct {
	RunID          string         `json:"run_id"`
	Taxonomy       string         `json:"taxonomy"`
	TrainedAt      time.Time      `json:"trained_at"`
	MinSupport     int            `json:"min_support"`
	Stages         []StageRef     `json:"stages"`
	Skipped        []SkippedStage `json:"skipped,omitempty"`
	EffectiveDepth int            `json:"effective_depth"`
	// Version is set when the manifest is loaded.
	Version int `json:"-"`
}

// NewManifest starts a manifest for a new training run.
func NewManifest(taxonomy string, minSupport int, now time.Time) *Manifest {
	return &Manifest{
		RunID:      uuid.NewString(),
		Taxonomy:   taxonomy,
		TrainedAt:  now.UTC(),
		MinSupport: minSupport,
	}
}

// Stage returns the pinned reference for name.
func (m *Manifest) Stage(name string) (StageRef, bool) {
	for _, ref := range m.Stages {
		if ref.Name == name {
			return ref, true
		}
	}
	return StageRef{}, false
}

// StageNames returns the trained stage names in training order.
func (m *Manifest) StageNames() []string {
	names := make([]string, len(m.Stages))
	for i, ref := range m.Stages {
		names[i] = ref.Name
	}
	return names
}

// PublishManifest stores m as the next manifest version of its taxonomy.
func PublishManifest(ctx context.Context, store Store, m *Manifest) (int, error) {
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode manifest: %w", err)
	}
	version, err := store.Put(ctx, Key{Taxonomy: m.Taxonomy, Stage: ManifestStage}, payload)
	if err != nil {
		return 0, fmt.Errorf("publish manifest for %s: %w", m.Taxonomy, err)
	}
	m.Version = version
	return version, nil
}

// LoadManifest reads a manifest version (or Latest) for taxonomy.
func LoadManifest(ctx context.Context, store Store, taxonomy string, version int) (*Manifest, error) {
	payload, resolved, err := store.Get(ctx, Key{Taxonomy: taxonomy, Stage: ManifestStage}, version)
	if err != nil {
		var notFound *domain.ArtifactNotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load manifest for %s: %w", taxonomy, err)
	}

	var m Manifest
	if err = json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode manifest for %s v%d: %w", taxonomy, resolved, err)
	}
	m.Version = resolved
	return &m, nil
}
