package memory

import (
	"context"
	"sync"

	"github.com/aretw0/tessera/pkg/domain"
)

// Store implements ports.ManifestStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.BlockID]domain.BlockManifest
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.BlockID]domain.BlockManifest),
	}
}

// Save persists the manifest in memory.
func (s *Store) Save(ctx context.Context, manifest domain.BlockManifest) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := manifest.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[manifest.ID()] = copied
	return nil
}

// Load retrieves the manifest from memory.
func (s *Store) Load(ctx context.Context, id domain.BlockID) (domain.BlockManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, ok := s.data[id]
	if !ok {
		return domain.BlockManifest{}, domain.ErrBlockNotFound
	}

	// Copy on read so callers can't mutate store state through shared slices
	return manifest.Clone(), nil
}

// Delete removes the manifest.
func (s *Store) Delete(ctx context.Context, id domain.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns every stored manifest.
func (s *Store) List(ctx context.Context) ([]domain.BlockManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BlockManifest, 0, len(s.data))
	for _, m := range s.data {
		out = append(out, m.Clone())
	}
	return out, nil
}
