package ports

import (
	"context"

	"github.com/aretw0/tessera/pkg/domain"
)

// ManifestStore defines the interface for persisting block manifests.
// The registry keeps its index in memory and writes through to a store, so a
// restarted process can rebuild the index with Hydrate.
type ManifestStore interface {
	// Save persists a manifest, replacing any previous record of the same identity.
	Save(ctx context.Context, manifest domain.BlockManifest) error

	// Load retrieves a manifest by identity.
	// Returns domain.ErrBlockNotFound if the block does not exist.
	Load(ctx context.Context, id domain.BlockID) (domain.BlockManifest, error)

	// Delete removes a manifest.
	Delete(ctx context.Context, id domain.BlockID) error

	// List returns every stored manifest.
	List(ctx context.Context) ([]domain.BlockManifest, error)
}
