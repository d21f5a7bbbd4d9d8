package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/ports"
)

// MockStore is a minimal map-backed ManifestStore used to exercise the contract itself.
type MockStore struct {
	mu   sync.Mutex
	data map[domain.BlockID]domain.BlockManifest
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[domain.BlockID]domain.BlockManifest)}
}

func (m *MockStore) Save(ctx context.Context, manifest domain.BlockManifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[manifest.ID()] = manifest.Clone()
	return nil
}

func (m *MockStore) Load(ctx context.Context, id domain.BlockID) (domain.BlockManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	manifest, ok := m.data[id]
	if !ok {
		return domain.BlockManifest{}, domain.ErrBlockNotFound
	}
	return manifest.Clone(), nil
}

func (m *MockStore) Delete(ctx context.Context, id domain.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]domain.BlockManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BlockManifest, 0, len(m.data))
	for _, manifest := range m.data {
		out = append(out, manifest.Clone())
	}
	return out, nil
}

func TestMockStoreContract(t *testing.T) {
	ports.RunManifestStoreContract(t, NewMockStore())
}
