package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/observability"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
)

func TestChain(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnRegister: func(context.Context, *domain.BlockEvent) { calls = append(calls, "a") },
	}
	b := domain.LifecycleHooks{
		OnRegister: func(context.Context, *domain.BlockEvent) { calls = append(calls, "b") },
		OnSearch:   func(context.Context, *domain.SearchEvent) { calls = append(calls, "search") },
	}

	h := observability.Chain(a, domain.LifecycleHooks{}, b)
	h.OnRegister(context.Background(), &domain.BlockEvent{})
	h.OnSearch(context.Background(), &domain.SearchEvent{})

	assert.Equal(t, []string{"a", "b", "search"}, calls)
	assert.Nil(t, h.OnValidate, "unset callbacks stay nil")
}

func TestMetrics_Hooks(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg, nil)
	require.NoError(t, err)

	store := registry.New(registry.WithHooks(m.Hooks()))
	block := domain.BlockManifest{
		Namespace: "app", Name: "echo", Version: "1.0.0",
		Signature: domain.Signature{Input: schema.MustParse("Text"), Output: schema.MustParse("Text")},
	}
	require.NoError(t, store.Register(ctx, block))
	require.Error(t, store.Register(ctx, block))

	h := m.Hooks()
	h.OnValidate(ctx, &domain.ValidationEvent{Errors: 2, Warnings: 1, Duration: time.Millisecond})
	h.OnSearch(ctx, &domain.SearchEvent{Mode: "semantic", CacheHit: true})
	h.OnSearch(ctx, &domain.SearchEvent{Mode: "type", Err: errors.New("boom")})

	expected := `
# HELP tessera_registry_writes_total Registry writes by kind and outcome.
# TYPE tessera_registry_writes_total counter
tessera_registry_writes_total{event="block_registered",outcome="error"} 1
tessera_registry_writes_total{event="block_registered",outcome="ok"} 1
# HELP tessera_validations_total Graph validations by outcome.
# TYPE tessera_validations_total counter
tessera_validations_total{outcome="invalid"} 1
# HELP tessera_searches_total Searches by mode and outcome.
# TYPE tessera_searches_total counter
tessera_searches_total{mode="semantic",outcome="cache_hit"} 1
tessera_searches_total{mode="type",outcome="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tessera_registry_writes_total", "tessera_validations_total", "tessera_searches_total"))
}

func TestMetrics_BlockGauge(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store := registry.New()
	_, err := observability.NewMetrics(reg, store)
	require.NoError(t, err)

	require.NoError(t, store.Seed(ctx, domain.BlockManifest{
		Namespace: "app", Name: "echo", Version: "1.0.0", State: domain.StateStable,
		Signature: domain.Signature{Input: schema.MustParse("Text"), Output: schema.MustParse("Text")},
	}))

	expected := `
# HELP tessera_blocks Registered block versions by lifecycle state.
# TYPE tessera_blocks gauge
tessera_blocks{state="archived"} 0
tessera_blocks{state="deprecated"} 0
tessera_blocks{state="proposed"} 0
tessera_blocks{state="stable"} 1
tessera_blocks{state="testing"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tessera_blocks"))
}

func TestNewMetrics_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg, nil)
	require.NoError(t, err)
	_, err = observability.NewMetrics(reg, nil)
	assert.Error(t, err)
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := observability.LogHooks(logger)

	id := domain.BlockID{Namespace: "app", Name: "echo", Version: "1.0.0"}
	h.OnTransition(context.Background(), &domain.BlockEvent{
		EventBase: domain.EventBase{Type: domain.EventStateChanged},
		ID:        id, From: domain.StateProposed, To: domain.StateTesting,
	})
	h.OnRegister(context.Background(), &domain.BlockEvent{
		EventBase: domain.EventBase{Type: domain.EventBlockRegistered},
		ID:        id, Err: domain.ErrDuplicateIdentity,
	})

	out := buf.String()
	assert.Contains(t, out, "state_changed")
	assert.Contains(t, out, "to=testing")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "app/echo@1.0.0")
}
