package registry

import "github.com/aretw0/tessera/pkg/domain"

// Snapshot is an immutable view of a set of resolved references, taken
// under a single read of the index.
type Snapshot struct {
	Generation uint64
	resolved   map[string]domain.BlockManifest
}

// Lookup returns the manifest ref resolved to when the snapshot was taken.
func (s *Snapshot) Lookup(ref domain.BlockRef) (domain.BlockManifest, bool) {
	m, ok := s.resolved[ref.String()]
	return m, ok
}

// Snapshot resolves every ref against one consistent registry state.
// Unresolvable refs are simply absent from the result.
func (s *Store) Snapshot(refs ...domain.BlockRef) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Generation: s.gen.Load(),
		resolved:   make(map[string]domain.BlockManifest, len(refs)),
	}
	for _, ref := range refs {
		if _, done := snap.resolved[ref.String()]; done {
			continue
		}
		if m, ok := s.resolveLocked(ref); ok {
			snap.resolved[ref.String()] = m
		}
	}
	return snap
}
