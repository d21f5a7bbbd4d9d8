package ports

import (
	"context"

	"github.com/aretw0/tessera/pkg/domain"
)

// CatalogLoader reads block manifests from an external catalog
// (a directory of markdown or YAML files, an embedded seed set).
type CatalogLoader interface {
	// LoadCatalog returns every manifest the catalog defines.
	LoadCatalog(ctx context.Context) ([]domain.BlockManifest, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload of a catalog directory.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying catalog changes.
	// It abstracts away the specific event details, signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
