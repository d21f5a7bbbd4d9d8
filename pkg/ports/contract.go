package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunManifestStoreContract runs a suite of tests to verify that a ManifestStore implementation
// adheres to the defined interface contract.
func RunManifestStoreContract(t *testing.T, store ManifestStore) {
	ctx := context.Background()
	ns := "contract" + time.Now().Format("20060102150405")

	manifest := func(name, version string) domain.BlockManifest {
		return domain.BlockManifest{
			Namespace: ns,
			Name:      name,
			Version:   version,
			Signature: domain.Signature{
				Input:  schema.Text(),
				Output: schema.Result(schema.Bool(), schema.Named("ValidationError")),
			},
			Tags:  []string{"validation"},
			State: domain.StateTesting,
			Metrics: domain.Metrics{
				TestCount:    12,
				TestPassRate: 0.5,
				UsageCount:   7,
				LastUpdated:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			}.Seed(),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		m := manifest("email.validate", "1.0.0")
		require.NoError(t, store.Save(ctx, m), "Save should not return error")

		loaded, err := store.Load(ctx, m.ID())
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, m.ID(), loaded.ID())
		assert.True(t, m.Signature.Equal(loaded.Signature), "signature must survive persistence")
		assert.Equal(t, m.Tags, loaded.Tags)
		assert.Equal(t, m.State, loaded.State)
		assert.Equal(t, m.Metrics.UsageCount, loaded.Metrics.UsageCount)
		assert.Equal(t, m.Metrics.Tally, loaded.Metrics.Tally)
		assert.True(t, m.Metrics.LastUpdated.Equal(loaded.Metrics.LastUpdated))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		m := manifest("url.validate", "1.0.0")
		require.NoError(t, store.Save(ctx, m))
		m.State = domain.StateStable
		m.Metrics.UsageCount = 500
		require.NoError(t, store.Save(ctx, m))

		loaded, err := store.Load(ctx, m.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StateStable, loaded.State)
		assert.Equal(t, int64(500), loaded.Metrics.UsageCount)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.BlockID{Namespace: ns, Name: "missing", Version: "9.9.9"})
		assert.ErrorIs(t, err, domain.ErrBlockNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		m := manifest("phone.validate", "1.0.0")
		require.NoError(t, store.Save(ctx, m))

		require.NoError(t, store.Delete(ctx, m.ID()), "Delete should not return error")

		_, err := store.Load(ctx, m.ID())
		assert.ErrorIs(t, err, domain.ErrBlockNotFound, "Load after Delete should return ErrBlockNotFound")
	})

	t.Run("List", func(t *testing.T) {
		a := manifest("json.parse", "1.0.0")
		b := manifest("json.parse", "1.1.0")
		require.NoError(t, store.Save(ctx, a))
		require.NoError(t, store.Save(ctx, b))
		defer func() {
			_ = store.Delete(ctx, a.ID())
			_ = store.Delete(ctx, b.ID())
		}()

		all, err := store.List(ctx)
		require.NoError(t, err)
		ids := make([]domain.BlockID, 0, len(all))
		for _, m := range all {
			ids = append(ids, m.ID())
		}
		assert.Contains(t, ids, a.ID())
		assert.Contains(t, ids, b.ID())
	})
}
