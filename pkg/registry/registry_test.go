package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tessera/pkg/adapters/memory"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(ns, name, v string, in, out string) domain.BlockManifest {
	return domain.BlockManifest{
		Namespace: ns,
		Name:      name,
		Version:   v,
		Signature: domain.Signature{Input: schema.MustParse(in), Output: schema.MustParse(out)},
	}
}

func mustRef(t *testing.T, s string) domain.BlockRef {
	t.Helper()
	ref, err := domain.ParseRef(s)
	require.NoError(t, err)
	return ref
}

func TestStore_Register(t *testing.T) {
	ctx := context.Background()
	s := registry.New()

	m := block("stdlib", "email.validate", "1.0.0", "Text", "Result<Bool,ValidationError>")
	require.NoError(t, s.Register(ctx, m))

	got, err := s.Get(m.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StateProposed, got.State, "state defaults to proposed")
	assert.Equal(t, uint64(1), s.Generation())

	err = s.Register(ctx, m)
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)
	assert.Equal(t, 1, s.Len(), "a rejected registration leaves nothing behind")
}

func TestStore_RegisterStartsProposed(t *testing.T) {
	ctx := context.Background()
	s := registry.New()

	for _, st := range []domain.LifecycleState{domain.StateTesting, domain.StateStable, domain.StateDeprecated, domain.StateArchived} {
		t.Run(string(st), func(t *testing.T) {
			m := block("evil", "untested", "1.0.0", "Text", "Bool")
			m.State = st
			err := s.Register(ctx, m)
			assert.ErrorIs(t, err, domain.ErrInvalidManifest)
			var me *domain.ManifestError
			require.ErrorAs(t, err, &me)
			assert.Contains(t, me.Problems[0], "lifecycle_state")
			assert.Equal(t, 0, s.Len())
		})
	}

	m := block("app", "fresh", "1.0.0", "Text", "Bool")
	m.State = domain.StateProposed
	require.NoError(t, s.Register(ctx, m))
}

func TestStore_SeedKeepsState(t *testing.T) {
	ctx := context.Background()
	s := registry.New()

	m := block("stdlib", "text.trim", "1.0.0", "Text", "Text")
	m.State = domain.StateStable
	require.NoError(t, s.Seed(ctx, m))

	got, err := s.Get(m.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StateStable, got.State)
	assert.ErrorIs(t, s.Seed(ctx, m), domain.ErrDuplicateIdentity)
}

func TestStore_RegisterInvalid(t *testing.T) {
	s := registry.New()
	err := s.Register(context.Background(), domain.BlockManifest{Name: "x", Version: "1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)

	var me *domain.ManifestError
	require.True(t, errors.As(err, &me))
	assert.Len(t, me.Problems, 4, "namespace, version, input and output are all reported")
	assert.Equal(t, 0, s.Len())
}

func TestStore_Resolve(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	for _, v := range []string{"1.0.0", "1.4.2", "1.10.0", "2.0.0"} {
		require.NoError(t, s.Register(ctx, block("core", "transform", v, "Any", "Any")))
	}

	got, ok := s.Resolve(mustRef(t, "core/transform@^1.0.0"))
	require.True(t, ok)
	assert.Equal(t, "1.10.0", got.Version)

	again, _ := s.Resolve(mustRef(t, "core/transform@^1.0.0"))
	assert.Equal(t, got.ID(), again.ID(), "resolve is idempotent")

	latest, ok := s.Resolve(mustRef(t, "core/transform"))
	require.True(t, ok)
	assert.Equal(t, "2.0.0", latest.Version)

	_, ok = s.Resolve(mustRef(t, "core/transform@>=3.0.0"))
	assert.False(t, ok)
	_, ok = s.Resolve(mustRef(t, "core/missing"))
	assert.False(t, ok)

	assert.Equal(t, []string{"2.0.0", "1.10.0", "1.4.2", "1.0.0"}, s.Versions("core", "transform"))
}

func TestStore_ResolveIgnoresLifecycle(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	m := block("core", "old", "1.0.0", "Any", "Any")
	m.State = domain.StateArchived
	require.NoError(t, s.Register(ctx, m))

	got, ok := s.Resolve(mustRef(t, "core/old"))
	require.True(t, ok)
	assert.Equal(t, domain.StateArchived, got.State)
}

func TestStore_UpdateMetrics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := registry.New(registry.WithClock(func() time.Time { return now }))

	m := block("stdlib", "json.parse", "1.0.0", "Text", "Result<Any,ParseError>")
	m.Metrics = domain.Metrics{TestCount: 10, TestPassRate: 1.0}
	require.NoError(t, s.Register(ctx, m))

	got, err := s.UpdateMetrics(ctx, m.ID(), domain.MetricsDelta{TestRuns: 10, TestPasses: 5, Usage: 3})
	require.NoError(t, err)
	assert.Equal(t, 20, got.Metrics.TestCount)
	assert.InDelta(t, 0.75, got.Metrics.TestPassRate, 1e-12)
	assert.Equal(t, int64(3), got.Metrics.UsageCount)
	assert.Equal(t, now, got.Metrics.LastUpdated)

	_, err = s.UpdateMetrics(ctx, m.ID(), domain.MetricsDelta{Usage: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidDelta)

	_, err = s.UpdateMetrics(ctx, domain.BlockID{Namespace: "x", Name: "y", Version: "1.0.0"}, domain.MetricsDelta{Usage: 1})
	assert.ErrorIs(t, err, domain.ErrBlockNotFound)
}

func TestStore_ConcurrentMetricUpdates(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	m := block("core", "pipe", "1.0.0", "Any", "Any")
	require.NoError(t, s.Register(ctx, m))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateMetrics(ctx, m.ID(), domain.MetricsDelta{TestRuns: 2, TestPasses: 1, Usage: 1})
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Resolve(domain.BlockRef{Namespace: "core", Name: "pipe"})
		}()
	}
	wg.Wait()

	got, err := s.Get(m.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Metrics.UsageCount)
	assert.Equal(t, 100, got.Metrics.TestCount)
	assert.InDelta(t, 0.5, got.Metrics.TestPassRate, 1e-12)
}

func TestStore_DependentCount(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	require.NoError(t, s.Register(ctx, block("core", "unwrap", "1.0.0", "Result<T,E>", "T")))

	dependent := block("stdlib", "email.check", "1.0.0", "Text", "Bool")
	dependent.Depends = []domain.BlockRef{mustRef(t, "core/unwrap@^1.0.0"), mustRef(t, "core/missing")}
	require.NoError(t, s.Register(ctx, dependent))

	got, err := s.Get(domain.BlockID{Namespace: "core", Name: "unwrap", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Metrics.DependentCount)
}

func TestStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	require.NoError(t, s.Register(ctx, block("core", "pipe", "1.0.0", "Any", "Any")))

	ref := mustRef(t, "core/pipe@^1.0.0")
	snap := s.Snapshot(ref, mustRef(t, "core/missing"))

	// Later writes do not leak into an existing snapshot.
	require.NoError(t, s.Register(ctx, block("core", "pipe", "1.1.0", "Any", "Any")))

	got, ok := snap.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", got.Version)
	_, ok = snap.Lookup(mustRef(t, "core/missing"))
	assert.False(t, ok)

	fresh, _ := s.Snapshot(ref).Lookup(ref)
	assert.Equal(t, "1.1.0", fresh.Version)
}

func TestStore_ListAndStats(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	a := block("stdlib", "text.trim", "1.0.0", "Text", "Text")
	a.Tags = []string{"text"}
	a.State = domain.StateStable
	a.Metrics = domain.Metrics{TestCount: 10, TestPassRate: 1}
	b := block("io", "stdout", "1.0.0", "Text", "None")
	b.Metrics = domain.Metrics{TestCount: 10, TestPassRate: 0.5}
	require.NoError(t, s.Register(ctx, a))
	require.NoError(t, s.Register(ctx, b))

	all := s.List(registry.Filter{})
	require.Len(t, all, 2)
	assert.Equal(t, "io", all[0].Namespace)

	stable := s.List(registry.Filter{States: []domain.LifecycleState{domain.StateStable}})
	require.Len(t, stable, 1)
	assert.Equal(t, "text.trim", stable[0].Name)
	assert.Len(t, s.List(registry.Filter{Tag: "TEXT"}), 1)

	st := s.Stats()
	assert.Equal(t, 2, st.TotalBlocks)
	assert.Equal(t, 1, st.Namespaces["io"])
	assert.Equal(t, 1, st.States[domain.StateProposed])
	assert.InDelta(t, 0.75, st.MeanPassRate, 1e-12)
}

func TestStore_WriteThroughAndHydrate(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()

	first := registry.New(registry.WithManifestStore(backing))
	m := block("core", "branch", "1.0.0", "Any", "Any")
	require.NoError(t, first.Register(ctx, m))
	_, err := first.UpdateMetrics(ctx, m.ID(), domain.MetricsDelta{Usage: 7})
	require.NoError(t, err)

	second := registry.New(registry.WithManifestStore(backing))
	n, err := second.Hydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := second.Get(m.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Metrics.UsageCount)
}

type failingStore struct{ *memory.Store }

func (failingStore) Save(context.Context, domain.BlockManifest) error { return errors.New("disk full") }

func TestStore_RegisterIsAllOrNothing(t *testing.T) {
	s := registry.New(registry.WithManifestStore(failingStore{memory.NewStore()}))
	err := s.Register(context.Background(), block("core", "pipe", "1.0.0", "Any", "Any"))
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Resolve(domain.BlockRef{Namespace: "core", Name: "pipe"})
	assert.False(t, ok)
}

func TestStore_Hooks(t *testing.T) {
	var events []domain.EventType
	var mu sync.Mutex
	record := func(_ context.Context, e *domain.BlockEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	}
	s := registry.New(registry.WithHooks(domain.LifecycleHooks{OnRegister: record, OnMetricsUpdate: record}))
	m := block("core", "pipe", "1.0.0", "Any", "Any")
	require.NoError(t, s.Register(context.Background(), m))
	_, err := s.UpdateMetrics(context.Background(), m.ID(), domain.MetricsDelta{Usage: 1})
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{domain.EventBlockRegistered, domain.EventMetricsUpdated}, events)
}
