// Package lifecycle enforces the maturity rules of blocks.
//
//	proposed -> testing -> stable -> deprecated -> archived
//
// Only the forward edges above exist. Promotion to stable is gated on
// metrics; every other edge is unconditional.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/pkg/domain"
)

// Gate holds the thresholds a testing block must meet to become stable.
type Gate struct {
	MinTestCount  int     `mapstructure:"min_test_count" yaml:"min_test_count" json:"min_test_count"`
	MinPassRate   float64 `mapstructure:"min_pass_rate" yaml:"min_pass_rate" json:"min_pass_rate"`
	MinUsageCount int64   `mapstructure:"min_usage_count" yaml:"min_usage_count" json:"min_usage_count"`
}

// DefaultGate returns the stock promotion thresholds.
func DefaultGate() Gate {
	return Gate{MinTestCount: 10, MinPassRate: 0.95, MinUsageCount: 100}
}

// Check lists every condition m fails, in a stable order.
func (g Gate) Check(m domain.Metrics) []string {
	var missing []string
	if m.TestCount < g.MinTestCount {
		missing = append(missing, fmt.Sprintf("test_count %d < %d", m.TestCount, g.MinTestCount))
	}
	if m.TestPassRate < g.MinPassRate {
		missing = append(missing, fmt.Sprintf("test_pass_rate %.2f < %.2f", m.TestPassRate, g.MinPassRate))
	}
	if m.UsageCount < g.MinUsageCount {
		missing = append(missing, fmt.Sprintf("usage_count %d < %d", m.UsageCount, g.MinUsageCount))
	}
	return missing
}

var edges = map[domain.LifecycleState]domain.LifecycleState{
	domain.StateProposed:   domain.StateTesting,
	domain.StateTesting:    domain.StateStable,
	domain.StateStable:     domain.StateDeprecated,
	domain.StateDeprecated: domain.StateArchived,
}

// Allowed returns the states reachable from from in one transition.
func Allowed(from domain.LifecycleState) []domain.LifecycleState {
	if to, ok := edges[from]; ok {
		return []domain.LifecycleState{to}
	}
	return nil
}

// DefaultVisible are the states search returns unless asked otherwise.
var DefaultVisible = []domain.LifecycleState{domain.StateTesting, domain.StateStable, domain.StateDeprecated}

// Visible reports whether a block in state st is returned by search.
// A non-empty include replaces DefaultVisible.
func Visible(st domain.LifecycleState, include []domain.LifecycleState) bool {
	if len(include) == 0 {
		include = DefaultVisible
	}
	return slices.Contains(include, st)
}

// Store is the part of the block store the manager writes through.
type Store interface {
	SetState(ctx context.Context, id domain.BlockID, check func(domain.BlockManifest) error, to domain.LifecycleState) (domain.BlockManifest, error)
}

// Manager applies lifecycle transitions.
type Manager struct {
	store  Store
	gate   Gate
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithGate overrides DefaultGate.
func WithGate(g Gate) Option {
	return func(m *Manager) {
		m.gate = g
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager writing to store.
func New(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		gate:   DefaultGate(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Gate returns the active promotion thresholds.
func (m *Manager) Gate() Gate { return m.gate }

// Transition moves the block id to state to. The edge and the gate are
// checked against the state current at commit time.
func (m *Manager) Transition(ctx context.Context, id domain.BlockID, to domain.LifecycleState) (domain.BlockManifest, error) {
	if !to.Valid() {
		return domain.BlockManifest{}, &domain.TransitionError{ID: id, To: to}
	}
	updated, err := m.store.SetState(ctx, id, func(cur domain.BlockManifest) error {
		return m.check(cur, to)
	}, to)
	if err != nil {
		m.logger.Debug("Transition rejected", "block", id.String(), "to", string(to), "err", err)
		return updated, err
	}
	m.logger.Info("Block transitioned", "block", id.String(), "state", string(to))
	return updated, nil
}

func (m *Manager) check(cur domain.BlockManifest, to domain.LifecycleState) error {
	if next, ok := edges[cur.State]; !ok || next != to {
		return &domain.TransitionError{ID: cur.ID(), From: cur.State, To: to}
	}
	if to == domain.StateStable {
		if missing := m.gate.Check(cur.Metrics); len(missing) > 0 {
			return &domain.GateError{ID: cur.ID(), Missing: missing}
		}
	}
	return nil
}
