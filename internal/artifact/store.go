// Package artifact persists versioned, immutable stage artifacts keyed by
// (taxonomy, stage). Every write creates a new version; existing versions are never
// modified in place.
package artifact

import (
	"context"
	"fmt"
)

// Latest requests the highest stored version.
const Latest = 0

// Key identifies an artifact lineage.
type Key struct {
	Taxonomy string
	Stage    string
}

func (k Key) String() string {
	return k.Taxonomy + "/" + k.Stage
}

func (k Key) validate() error {
	if k.Taxonomy == "" || k.Stage == "" {
		return fmt.Errorf("invalid artifact key %q", k.String())
	}
	return nil
}

// Store is a versioned artifact store. Put must publish atomically: a concurrent Get
// never observes a partially written payload.
type Store interface {
	// Put stores payload as the next version of key and returns that version.
	Put(ctx context.Context, key Key, payload []byte) (int, error)
	// Get returns the payload for version (or Latest) and the resolved version.
	// Missing artifacts yield *domain.ArtifactNotFoundError.
	Get(ctx context.Context, key Key, version int) ([]byte, int, error)
	// Versions lists stored versions in ascending order.
	Versions(ctx context.Context, key Key) ([]int, error)
}
