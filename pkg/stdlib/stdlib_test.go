package stdlib_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/lifecycle"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/stdlib"
)

func TestManifests(t *testing.T) {
	blocks, err := stdlib.Manifests()
	require.NoError(t, err)
	assert.Len(t, blocks, 19)

	gate := lifecycle.DefaultGate()
	for _, b := range blocks {
		assert.Equal(t, domain.StateStable, b.State, b.ID().String())
		assert.Empty(t, gate.Check(b.Metrics), "%s is seeded stable and must meet the gate", b.ID())
	}
}

func TestManifests_Register(t *testing.T) {
	blocks, err := stdlib.Manifests()
	require.NoError(t, err)

	s := registry.New()
	for _, b := range blocks {
		require.NoError(t, s.Seed(context.Background(), b))
	}

	unwrap, ok := s.Resolve(domain.BlockRef{Namespace: "core", Name: "unwrap"})
	require.True(t, ok)
	assert.Equal(t, "Result<T,E> -> T", unwrap.Signature.String())

	st := s.Stats()
	assert.Equal(t, 19, st.TotalBlocks)
	assert.Equal(t, 9, st.Namespaces["stdlib"])
}
