package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/lifecycle"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, s *registry.Store, state domain.LifecycleState, metrics domain.Metrics) domain.BlockID {
	t.Helper()
	m := domain.BlockManifest{
		Namespace: "stdlib",
		Name:      "text.trim",
		Version:   "1.0.0",
		Signature: domain.Signature{Input: schema.Text(), Output: schema.Text()},
		Metrics:   metrics,
		State:     state,
	}
	require.NoError(t, s.Seed(context.Background(), m))
	return m.ID()
}

func TestTransition_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	mgr := lifecycle.New(s)
	id := register(t, s, domain.StateProposed, domain.Metrics{TestCount: 20, TestPassRate: 0.99, UsageCount: 500})

	for _, to := range []domain.LifecycleState{
		domain.StateTesting,
		domain.StateStable,
		domain.StateDeprecated,
		domain.StateArchived,
	} {
		m, err := mgr.Transition(ctx, id, to)
		require.NoError(t, err, "-> %s", to)
		assert.Equal(t, to, m.State)
	}

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateArchived, got.State)
}

func TestTransition_GateListsEveryFailure(t *testing.T) {
	ctx := context.Background()
	s := registry.New()
	mgr := lifecycle.New(s)

	id := register(t, s, domain.StateTesting, domain.Metrics{TestCount: 5, TestPassRate: 0.99, UsageCount: 200})
	_, err := mgr.Transition(ctx, id, domain.StateStable)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGateNotMet)

	var gate *domain.GateError
	require.True(t, errors.As(err, &gate))
	require.Len(t, gate.Missing, 1)
	assert.Contains(t, gate.Missing[0], "test_count")

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateTesting, got.State, "a rejected promotion changes nothing")
}

func TestTransition_GateAllConditions(t *testing.T) {
	s := registry.New()
	mgr := lifecycle.New(s)

	id := register(t, s, domain.StateTesting, domain.Metrics{TestCount: 1, TestPassRate: 0.5, UsageCount: 3})
	_, err := mgr.Transition(context.Background(), id, domain.StateStable)

	var gate *domain.GateError
	require.True(t, errors.As(err, &gate))
	assert.Len(t, gate.Missing, 3)
}

func TestTransition_CustomGate(t *testing.T) {
	s := registry.New()
	mgr := lifecycle.New(s, lifecycle.WithGate(lifecycle.Gate{MinTestCount: 1}))
	assert.Equal(t, 1, mgr.Gate().MinTestCount)

	id := register(t, s, domain.StateTesting, domain.Metrics{TestCount: 1})
	_, err := mgr.Transition(context.Background(), id, domain.StateStable)
	assert.NoError(t, err)
}

func TestTransition_Illegal(t *testing.T) {
	tests := []struct {
		name string
		from domain.LifecycleState
		to   domain.LifecycleState
	}{
		{"skip testing", domain.StateProposed, domain.StateStable},
		{"self", domain.StateStable, domain.StateStable},
		{"backwards", domain.StateDeprecated, domain.StateStable},
		{"out of archive", domain.StateArchived, domain.StateDeprecated},
		{"unknown target", domain.StateProposed, domain.LifecycleState("retired")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := registry.New()
			mgr := lifecycle.New(s)
			id := register(t, s, tt.from, domain.Metrics{})

			_, err := mgr.Transition(context.Background(), id, tt.to)
			assert.ErrorIs(t, err, domain.ErrIllegalTransition)

			got, err := s.Get(id)
			require.NoError(t, err)
			assert.Equal(t, tt.from, got.State)
		})
	}
}

func TestTransition_NotFound(t *testing.T) {
	mgr := lifecycle.New(registry.New())
	_, err := mgr.Transition(context.Background(), domain.BlockID{Namespace: "a", Name: "b", Version: "1.0.0"}, domain.StateTesting)
	assert.ErrorIs(t, err, domain.ErrBlockNotFound)
}

func TestAllowedAndVisible(t *testing.T) {
	assert.Equal(t, []domain.LifecycleState{domain.StateTesting}, lifecycle.Allowed(domain.StateProposed))
	assert.Empty(t, lifecycle.Allowed(domain.StateArchived))

	assert.True(t, lifecycle.Visible(domain.StateStable, nil))
	assert.True(t, lifecycle.Visible(domain.StateDeprecated, nil))
	assert.False(t, lifecycle.Visible(domain.StateProposed, nil))
	assert.False(t, lifecycle.Visible(domain.StateArchived, nil))
	assert.True(t, lifecycle.Visible(domain.StateArchived, []domain.LifecycleState{domain.StateArchived}))
}
