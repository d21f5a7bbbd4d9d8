package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/ports"
	"github.com/aretw0/tessera/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultLockTTL bounds how long a distributed identity lock is held.
const DefaultLockTTL = 30 * time.Second

// Store is the block store: the authoritative index of manifests, their
// versions, lifecycle state and metrics.
//
// Reads take a short shared lock on the index and return copies. Writes are
// serialized per identity and commit by swapping the stored manifest, so a
// reader always observes either the old or the new value.
type Store struct {
	mu    sync.RWMutex
	byID  map[domain.BlockID]*domain.BlockManifest
	byKey map[string][]domain.BlockID // "namespace/name" -> versions
	gen   atomic.Uint64

	locks   *identityLocks
	persist ports.ManifestStore     // Optional write-through store
	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithManifestStore enables write-through persistence.
func WithManifestStore(store ports.ManifestStore) Option {
	return func(s *Store) {
		s.persist = store
	}
}

// WithLocker enables distributed locking of identity writes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Store) {
		s.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Store) {
		s.hooks = hooks
	}
}

// WithTracer records spans for write operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:    make(map[domain.BlockID]*domain.BlockManifest),
		byKey:   make(map[string][]domain.BlockID),
		locks:   newIdentityLocks(),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
		tracer:  noop.NewTracerProvider().Tracer("registry"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generation is a counter bumped by every committed write. Caches keyed by
// generation are invalidated by any change to the registry.
func (s *Store) Generation() uint64 { return s.gen.Load() }

// Register adds a new block in the proposed state. It fails with
// domain.ErrDuplicateIdentity if the identity exists, or with a
// *domain.ManifestError if the manifest is malformed or asks for any other
// lifecycle state. Registration is all-or-nothing.
func (s *Store) Register(ctx context.Context, m domain.BlockManifest) error {
	if m.State != "" && m.State != domain.StateProposed {
		return &domain.ManifestError{
			ID:   m.ID().String(),
			Kind: domain.ErrInvalidManifest,
			Problems: []string{fmt.Sprintf(
				"lifecycle_state %q cannot be set at registration: new blocks start as %s", m.State, domain.StateProposed)},
		}
	}
	return s.register(ctx, m, "registry.Register")
}

// Seed adds a block from a trusted source, such as a curated catalog, keeping
// the lifecycle state it declares. Callers reachable from untrusted input must
// use Register.
func (s *Store) Seed(ctx context.Context, m domain.BlockManifest) error {
	return s.register(ctx, m, "registry.Seed")
}

func (s *Store) register(ctx context.Context, m domain.BlockManifest, op string) (err error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("block.id", m.ID().String())))
	defer func() { endSpan(span, err) }()

	if err := m.Validate(); err != nil {
		return err
	}
	m = prepare(m)
	id := m.ID()

	err = s.withLock(ctx, id.String(), func(ctx context.Context) error {
		s.mu.RLock()
		_, exists := s.byID[id]
		s.mu.RUnlock()
		if exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentity, id)
		}

		if s.persist != nil {
			if err := s.persist.Save(ctx, m); err != nil {
				return fmt.Errorf("failed to persist %s: %w", id, err)
			}
		}

		s.mu.Lock()
		s.insert(m)
		s.gen.Add(1)
		s.mu.Unlock()
		return nil
	})
	s.emit(ctx, s.hooks.OnRegister, domain.EventBlockRegistered, id, "", "", err)
	if err != nil {
		return err
	}

	s.logger.Debug("Block registered", "block", id.String(), "signature", m.Signature.String())
	s.propagateDependents(ctx, m)
	return nil
}

// Hydrate loads every manifest from the configured ManifestStore into the
// index. Identities already indexed are left untouched.
func (s *Store) Hydrate(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	all, err := s.persist.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list persisted manifests: %w", err)
	}

	loaded := 0
	s.mu.Lock()
	for _, m := range all {
		if _, exists := s.byID[m.ID()]; exists {
			continue
		}
		if err := m.Validate(); err != nil {
			s.logger.Warn("Skipping invalid persisted manifest", "block", m.ID().String(), "err", err)
			continue
		}
		s.insert(prepare(m))
		loaded++
	}
	if loaded > 0 {
		s.gen.Add(1)
	}
	s.mu.Unlock()
	return loaded, nil
}

// prepare fills defaults on a manifest about to be indexed.
func prepare(m domain.BlockManifest) domain.BlockManifest {
	m = m.Clone()
	if m.State == "" {
		m.State = domain.StateProposed
	}
	if m.Metrics.Tally == (domain.Tally{}) {
		m.Metrics = m.Metrics.Seed()
	}
	return m
}

// insert adds m to both indexes. Caller holds s.mu.
func (s *Store) insert(m domain.BlockManifest) {
	id := m.ID()
	s.byID[id] = &m
	s.byKey[id.Key()] = append(s.byKey[id.Key()], id)
}

// propagateDependents bumps dependent_count on each resolvable dependency.
func (s *Store) propagateDependents(ctx context.Context, m domain.BlockManifest) {
	for _, dep := range m.Depends {
		target, ok := s.Resolve(dep)
		if !ok {
			s.logger.Warn("Dependency not registered", "block", m.ID().String(), "depends", dep.String())
			continue
		}
		if _, err := s.UpdateMetrics(ctx, target.ID(), domain.MetricsDelta{Dependents: 1}); err != nil {
			s.logger.Warn("Failed to update dependent count", "block", target.ID().String(), "err", err)
		}
	}
}

// Get returns the manifest with the exact identity.
func (s *Store) Get(id domain.BlockID) (domain.BlockManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return domain.BlockManifest{}, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, id)
	}
	return m.Clone(), nil
}

// Resolve returns the highest version of ref's block satisfying ref.Range,
// regardless of lifecycle state. It is idempotent for a fixed registry.
func (s *Store) Resolve(ref domain.BlockRef) (domain.BlockManifest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(ref)
}

func (s *Store) resolveLocked(ref domain.BlockRef) (domain.BlockManifest, bool) {
	ids := s.byKey[ref.Key()]
	versions := make([]string, len(ids))
	for i, id := range ids {
		versions[i] = id.Version
	}
	best, ok := ref.Range.Max(versions)
	if !ok {
		return domain.BlockManifest{}, false
	}
	m := s.byID[domain.BlockID{Namespace: ref.Namespace, Name: ref.Name, Version: best}]
	return m.Clone(), true
}

// Versions returns every registered version of namespace/name, newest first.
func (s *Store) Versions(namespace, name string) []string {
	s.mu.RLock()
	ids := s.byKey[namespace+"/"+name]
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Version
	}
	s.mu.RUnlock()
	version.Sort(out)
	return out
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Namespace string
	Tag       string
	States    []domain.LifecycleState
}

func (f Filter) match(m *domain.BlockManifest) bool {
	if f.Namespace != "" && m.Namespace != f.Namespace {
		return false
	}
	if f.Tag != "" && !m.HasTag(f.Tag) {
		return false
	}
	if len(f.States) > 0 {
		for _, st := range f.States {
			if m.State == st {
				return true
			}
		}
		return false
	}
	return true
}

// List returns copies of matching manifests ordered by namespace/name, then
// newest version first.
func (s *Store) List(f Filter) []domain.BlockManifest {
	s.mu.RLock()
	out := make([]domain.BlockManifest, 0, len(s.byID))
	for _, m := range s.byID {
		if f.match(m) {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if ki, kj := out[i].ID().Key(), out[j].ID().Key(); ki != kj {
			return ki < kj
		}
		return version.Compare(out[i].Version, out[j].Version) > 0
	})
	return out
}

// Len returns the number of registered blocks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Update applies mutate to the current manifest under the identity's write
// lock and commits the result. Identity and signature cannot change.
func (s *Store) Update(ctx context.Context, id domain.BlockID, mutate func(domain.BlockManifest) (domain.BlockManifest, error)) (domain.BlockManifest, error) {
	var committed domain.BlockManifest
	err := s.withLock(ctx, id.String(), func(ctx context.Context) error {
		cur, err := s.Get(id)
		if err != nil {
			return err
		}
		next, err := mutate(cur.Clone())
		if err != nil {
			return err
		}
		if next.ID() != id || !next.Signature.Equal(cur.Signature) {
			return fmt.Errorf("%s: identity and signature are immutable", id)
		}

		if s.persist != nil {
			if err := s.persist.Save(ctx, next); err != nil {
				return fmt.Errorf("failed to persist %s: %w", id, err)
			}
		}

		s.mu.Lock()
		stored := next.Clone()
		s.byID[id] = &stored
		s.gen.Add(1)
		s.mu.Unlock()
		committed = next
		return nil
	})
	return committed, err
}

// UpdateMetrics adds delta to the block's metrics. Counters only grow;
// test_pass_rate is recomputed from accumulated runs and passes.
func (s *Store) UpdateMetrics(ctx context.Context, id domain.BlockID, delta domain.MetricsDelta) (m domain.BlockManifest, err error) {
	ctx, span := s.tracer.Start(ctx, "registry.UpdateMetrics", trace.WithAttributes(attribute.String("block.id", id.String())))
	defer func() { endSpan(span, err) }()

	if err := delta.Validate(); err != nil {
		return domain.BlockManifest{}, err
	}
	if delta.At.IsZero() {
		delta.At = s.now()
	}
	m, err = s.Update(ctx, id, func(cur domain.BlockManifest) (domain.BlockManifest, error) {
		metrics, err := cur.Metrics.Apply(delta)
		if err != nil {
			return cur, err
		}
		cur.Metrics = metrics
		return cur, nil
	})
	s.emit(ctx, s.hooks.OnMetricsUpdate, domain.EventMetricsUpdated, id, "", "", err)
	return m, err
}

// SetState commits a lifecycle state change without checking the transition
// rules; lifecycle.Manager is the caller that enforces them.
func (s *Store) SetState(ctx context.Context, id domain.BlockID, check func(domain.BlockManifest) error, to domain.LifecycleState) (m domain.BlockManifest, err error) {
	ctx, span := s.tracer.Start(ctx, "registry.SetState", trace.WithAttributes(
		attribute.String("block.id", id.String()),
		attribute.String("block.state", string(to)),
	))
	defer func() { endSpan(span, err) }()

	var from domain.LifecycleState
	m, err = s.Update(ctx, id, func(cur domain.BlockManifest) (domain.BlockManifest, error) {
		from = cur.State
		if check != nil {
			if err := check(cur); err != nil {
				return cur, err
			}
		}
		cur.State = to
		return cur, nil
	})
	s.emit(ctx, s.hooks.OnTransition, domain.EventStateChanged, id, from, to, err)
	return m, err
}

// Stats summarizes the registry contents.
type Stats struct {
	TotalBlocks  int                           `json:"total_blocks"`
	Namespaces   map[string]int                `json:"namespaces"`
	Tags         map[string]int                `json:"tags"`
	States       map[domain.LifecycleState]int `json:"states"`
	MeanPassRate float64                       `json:"mean_pass_rate"`
	Generation   uint64                        `json:"generation"`
}

// Stats computes registry-wide counts.
func (s *Store) Stats() Stats {
	st := Stats{
		Namespaces: make(map[string]int),
		Tags:       make(map[string]int),
		States:     make(map[domain.LifecycleState]int),
		Generation: s.Generation(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rateSum float64
	for _, m := range s.byID {
		st.TotalBlocks++
		st.Namespaces[m.Namespace]++
		st.States[m.State]++
		for _, t := range m.Tags {
			st.Tags[t]++
		}
		rateSum += m.Metrics.TestPassRate
	}
	if st.TotalBlocks > 0 {
		st.MeanPassRate = rateSum / float64(st.TotalBlocks)
	}
	return st
}

func (s *Store) emit(ctx context.Context, hook func(context.Context, *domain.BlockEvent), typ domain.EventType, id domain.BlockID, from, to domain.LifecycleState, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.BlockEvent{
		EventBase: domain.EventBase{Timestamp: s.now(), Type: typ},
		ID:        id,
		From:      from,
		To:        to,
		Err:       err,
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IsNotFound reports whether err means the block does not exist.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrBlockNotFound) }
