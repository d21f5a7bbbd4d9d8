package domain_test

import (
	"testing"
	"time"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMetrics_Apply(t *testing.T) {
	base := domain.Metrics{TestCount: 20, TestPassRate: 0.9, UsageCount: 5}.Seed()
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	got, err := base.Apply(domain.MetricsDelta{TestRuns: 10, TestPasses: 10, Usage: 3, At: at})
	require.NoError(t, err)
	assert.Equal(t, 30, got.TestCount)
	assert.InDelta(t, 28.0/30.0, got.TestPassRate, 1e-12)
	assert.Equal(t, int64(8), got.UsageCount)
	assert.Equal(t, at, got.LastUpdated)

	older, err := got.Apply(domain.MetricsDelta{Usage: 1, At: at.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, at, older.LastUpdated, "last_updated keeps the maximum")

	withLatency, err := base.Apply(domain.MetricsDelta{LatencySamples: []float64{10, 30}})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, withLatency.LatencyMillis, 1e-9)
}

func TestMetrics_ApplyRejectsInvalidDeltas(t *testing.T) {
	base := domain.Metrics{}.Seed()
	for name, d := range map[string]domain.MetricsDelta{
		"negative usage":      {Usage: -1},
		"negative runs":       {TestRuns: -1},
		"passes exceed runs":  {TestRuns: 1, TestPasses: 2},
		"negative latency":    {LatencySamples: []float64{-5}},
		"negative dependents": {Dependents: -2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := base.Apply(d)
			assert.ErrorIs(t, err, domain.ErrInvalidDelta)
		})
	}
}

func TestMetrics_ApplyIsOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := domain.Metrics{
			TestCount:    rapid.IntRange(0, 50).Draw(t, "seedRuns"),
			TestPassRate: rapid.Float64Range(0, 1).Draw(t, "seedRate"),
		}.Seed()

		n := rapid.IntRange(1, 8).Draw(t, "n")
		deltas := make([]domain.MetricsDelta, n)
		for i := range deltas {
			runs := rapid.IntRange(0, 20).Draw(t, "runs")
			deltas[i] = domain.MetricsDelta{
				TestRuns:   runs,
				TestPasses: rapid.IntRange(0, runs).Draw(t, "passes"),
				Usage:      rapid.Int64Range(0, 100).Draw(t, "usage"),
				At:         time.Unix(rapid.Int64Range(0, 1e9).Draw(t, "at"), 0),
			}
		}
		perm := rapid.Permutation(deltas).Draw(t, "perm")

		forward, reversed := base, base
		var err error
		for _, d := range deltas {
			forward, err = forward.Apply(d)
			if err != nil {
				t.Fatal(err)
			}
		}
		for _, d := range perm {
			reversed, err = reversed.Apply(d)
			if err != nil {
				t.Fatal(err)
			}
		}

		if forward.TestCount != reversed.TestCount ||
			forward.TestPassRate != reversed.TestPassRate ||
			forward.UsageCount != reversed.UsageCount ||
			!forward.LastUpdated.Equal(reversed.LastUpdated) {
			t.Fatalf("order changed the result: %+v vs %+v", forward, reversed)
		}
	})
}
