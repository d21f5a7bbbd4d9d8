// Package stdlib embeds the seed catalog of standard blocks: core
// combinators, IO, validation, data and text processing.
package stdlib

import (
	"context"
	_ "embed"

	"github.com/aretw0/tessera/pkg/adapters/memory"
	"github.com/aretw0/tessera/pkg/domain"
)

//go:embed catalog.yaml
var catalog string

// Loader returns a ports.CatalogLoader over the embedded catalog.
func Loader() *memory.Loader {
	return memory.NewLoader(map[string]string{"stdlib": catalog})
}

// Manifests decodes the embedded catalog.
func Manifests() ([]domain.BlockManifest, error) {
	return Loader().LoadCatalog(context.Background())
}
