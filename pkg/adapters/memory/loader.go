package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
	"github.com/aretw0/tessera/pkg/schema"
)

// Loader implements ports.CatalogLoader using in-memory documents.
type Loader struct {
	docs map[string][]byte
}

// NewLoader creates a Loader from raw YAML or JSON documents keyed by name.
// Each document may hold one manifest record or a "blocks" list.
func NewLoader(data map[string]string) *Loader {
	docs := make(map[string][]byte)
	for k, v := range data {
		docs[k] = []byte(v)
	}
	return &Loader{docs: docs}
}

// LoadCatalog decodes every document in name order. Records that fail to
// decode are reported together; the valid ones are still returned.
func (l *Loader) LoadCatalog(ctx context.Context) ([]domain.BlockManifest, error) {
	names := make([]string, 0, len(l.docs))
	for k := range l.docs {
		names = append(names, k)
	}
	sort.Strings(names) // Deterministic order

	var (
		out  []domain.BlockManifest
		errs []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		blocks, err := manifest.DecodeDocument(l.docs[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		out = append(out, blocks...)
	}
	if len(errs) > 0 {
		return out, &schema.AggregateError{Errors: errs}
	}
	return out, nil
}
