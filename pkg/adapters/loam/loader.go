// Package loam reads block manifests from a directory of markdown, YAML or
// JSON documents managed by Loam.
//
// Frontmatter carries the manifest fields. The markdown body becomes the
// description when the frontmatter has none, and a document's path supplies
// the namespace and name when they are omitted: stdlib/email.validate.md
// declares stdlib/email.validate.
package loam

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
	"github.com/aretw0/tessera/pkg/schema"
)

// Loader adapts a Loam repository to the ports.CatalogLoader interface.
type Loader struct {
	Repo *loam.TypedRepository[BlockMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[BlockMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string, opts ...loam.Option) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog path: %w", err)
	}
	opts = append([]loam.Option{loam.WithReadOnly(true), loam.WithVersioning(false)}, opts...)
	repo, err := loam.Init(absPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[BlockMetadata](repo)), nil
}

// LoadCatalog decodes every document in the repository, in ID order.
// Invalid documents are reported together; the valid ones are still returned.
func (l *Loader) LoadCatalog(ctx context.Context) ([]domain.BlockManifest, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	type entry struct {
		id      string
		meta    BlockMetadata
		content string
	}
	entries := make([]entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, entry{id: doc.ID, meta: doc.Data, content: doc.Content})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	var (
		out  []domain.BlockManifest
		errs []error
		seen = make(map[domain.BlockID]string)
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		meta := inferIdentity(e.id, e.meta)
		if meta.Description == "" {
			meta.Description = strings.TrimSpace(e.content)
		}

		m, err := manifest.Decode(meta.record())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.id, err))
			continue
		}
		if prev, ok := seen[m.ID()]; ok {
			errs = append(errs, fmt.Errorf("%s: %w: %s is also defined in %s", e.id, domain.ErrDuplicateIdentity, m.ID(), prev))
			continue
		}
		seen[m.ID()] = e.id
		out = append(out, m)
	}
	if len(errs) > 0 {
		return out, &schema.AggregateError{Errors: errs}
	}
	return out, nil
}

// inferIdentity fills namespace and name from the document path.
func inferIdentity(docID string, meta BlockMetadata) BlockMetadata {
	p := trimExtension(docID)
	dir, base := path.Split(p)
	if meta.Name == "" {
		meta.Name = base
	}
	if meta.Namespace == "" {
		meta.Namespace = strings.Trim(dir, "/")
	}
	return meta
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	switch ext {
	case ".md", ".json", ".yaml", ".yml":
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable. Each signal means the catalog changed
// and should be reloaded.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce bursts: one pending signal is enough.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
