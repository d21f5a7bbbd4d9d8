package tessera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/internal/validator"
	"github.com/aretw0/tessera/pkg/adapters/lexical"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/lifecycle"
	"github.com/aretw0/tessera/pkg/ports"
	"github.com/aretw0/tessera/pkg/ranking"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/search"
	"github.com/aretw0/tessera/pkg/stdlib"
)

// Registry is the high-level entry point for the tessera library.
// It wires the block store, search, ranking, lifecycle and wiring validation
// around one shared index.
type Registry struct {
	store     *registry.Store
	ranker    *ranking.Engine
	search    *search.Engine
	validator *validator.Validator
	lifecycle *lifecycle.Manager

	persist  ports.ManifestStore
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	scorer   ports.SemanticScorer
	catalogs []ports.CatalogLoader
	hooks    domain.LifecycleHooks
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time

	rankCfg   ranking.Config
	profile   ranking.Profile
	gate      *lifecycle.Gate
	searchOps []search.Option
	validOps  []validator.Option

	closeOnce sync.Once
	closers   []func(context.Context) error
}

// Option defines a functional option for configuring the Registry.
type Option func(*Registry)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithManifestStore persists every write and hydrates the index on New.
func WithManifestStore(store ports.ManifestStore) Option {
	return func(r *Registry) {
		r.persist = store
	}
}

// WithLocker serializes writes across replicas sharing one ManifestStore.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(r *Registry) {
		r.locker = locker
		r.lockTTL = ttl
	}
}

// WithScorer replaces the default lexical semantic scorer.
func WithScorer(s ports.SemanticScorer) Option {
	return func(r *Registry) {
		r.scorer = s
	}
}

// WithCatalog loads manifests from l when the Registry is created and on Reload.
func WithCatalog(l ports.CatalogLoader) Option {
	return func(r *Registry) {
		r.catalogs = append(r.catalogs, l)
	}
}

// WithStdlib seeds the registry with the embedded standard blocks.
func WithStdlib() Option {
	return WithCatalog(stdlib.Loader())
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// WithTracer sets the tracer used for spans around registry operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

// WithRanking tunes the ranking engine.
func WithRanking(cfg ranking.Config) Option {
	return func(r *Registry) {
		r.rankCfg = cfg
	}
}

// WithProfile sets the ranking profile used when a query names none.
func WithProfile(p ranking.Profile) Option {
	return func(r *Registry) {
		r.profile = p
	}
}

// WithGate replaces the testing -> stable promotion gate.
func WithGate(g lifecycle.Gate) Option {
	return func(r *Registry) {
		r.gate = &g
	}
}

// WithSearchOptions passes options through to the search engine.
func WithSearchOptions(opts ...search.Option) Option {
	return func(r *Registry) {
		r.searchOps = append(r.searchOps, opts...)
	}
}

// WithValidatorOptions passes options through to the wiring validator.
func WithValidatorOptions(opts ...validator.Option) Option {
	return func(r *Registry) {
		r.validOps = append(r.validOps, opts...)
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithCloser registers fn to run on Close, after the registry stops.
// Closers run in reverse registration order.
func WithCloser(fn func(context.Context) error) Option {
	return func(r *Registry) {
		r.closers = append(r.closers, fn)
	}
}

// New initializes a Registry. When a ManifestStore is configured its records
// are loaded first; catalogs are loaded afterwards, skipping identities that
// already exist.
func New(ctx context.Context, opts ...Option) (*Registry, error) {
	r := &Registry{
		rankCfg: ranking.DefaultConfig(),
		profile: ranking.ProfileDefault,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("tessera")
	}
	if r.scorer == nil {
		r.scorer = lexical.New()
	}
	if r.now == nil {
		r.now = time.Now
	}

	ranker, err := ranking.New(r.rankCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid ranking configuration: %w", err)
	}
	if _, err := ranker.Weights(r.profile); err != nil {
		return nil, err
	}
	r.ranker = ranker

	storeOpts := []registry.Option{
		registry.WithLogger(r.logger),
		registry.WithHooks(r.hooks),
		registry.WithTracer(r.tracer),
		registry.WithClock(r.now),
	}
	if r.persist != nil {
		storeOpts = append(storeOpts, registry.WithManifestStore(r.persist))
	}
	if r.locker != nil {
		storeOpts = append(storeOpts, registry.WithLocker(r.locker))
		if r.lockTTL > 0 {
			storeOpts = append(storeOpts, registry.WithLockTTL(r.lockTTL))
		}
	}
	r.store = registry.New(storeOpts...)

	r.search = search.New(r.store, ranker, append([]search.Option{
		search.WithScorer(r.scorer),
		search.WithProfile(r.profile),
		search.WithLogger(r.logger),
		search.WithHooks(r.hooks),
		search.WithTracer(r.tracer),
		search.WithClock(r.now),
	}, r.searchOps...)...)

	r.validator = validator.New(r.store, append([]validator.Option{
		validator.WithSearcher(r.search),
		validator.WithLogger(r.logger),
		validator.WithHooks(r.hooks),
		validator.WithTracer(r.tracer),
	}, r.validOps...)...)

	lcOpts := []lifecycle.Option{lifecycle.WithLogger(r.logger)}
	if r.gate != nil {
		lcOpts = append(lcOpts, lifecycle.WithGate(*r.gate))
	}
	r.lifecycle = lifecycle.New(r.store, lcOpts...)

	if r.persist != nil {
		n, err := r.store.Hydrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate registry: %w", err)
		}
		r.logger.Info("Registry hydrated", "blocks", n)
	}
	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads every configured catalog and registers the manifests the
// registry does not hold yet. It returns how many were added. Invalid
// records are reported together after the valid ones are registered.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	var (
		added int
		errs  []error
	)
	for _, c := range r.catalogs {
		blocks, err := c.LoadCatalog(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, m := range blocks {
			err := r.store.Seed(ctx, m)
			switch {
			case err == nil:
				added++
			case errors.Is(err, domain.ErrDuplicateIdentity):
			default:
				errs = append(errs, err)
			}
		}
	}
	if added > 0 {
		r.logger.Info("Catalog loaded", "added", added, "total", r.store.Len())
	}
	if len(errs) > 0 {
		return added, fmt.Errorf("catalog: %w", &schema.AggregateError{Errors: errs})
	}
	return added, nil
}

// Watch reloads catalogs that support change notification until ctx is
// done. It returns once every watcher has started.
func (r *Registry) Watch(ctx context.Context) error {
	for _, c := range r.catalogs {
		w, ok := c.(ports.Watchable)
		if !ok {
			continue
		}
		changes, err := w.Watch(ctx)
		if err != nil {
			return fmt.Errorf("failed to watch catalog: %w", err)
		}
		go func() {
			for range changes {
				if n, err := r.Reload(ctx); err != nil {
					r.logger.Warn("Catalog reload failed", "err", err)
				} else {
					r.logger.Debug("Catalog reloaded", "added", n)
				}
			}
		}()
	}
	return nil
}

// Close runs the registered closers. It is safe to call more than once.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	r.closeOnce.Do(func() {
		for i := len(r.closers) - 1; i >= 0; i-- {
			if err := r.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Register adds a new block in the proposed state. Promotion goes through
// Transition and its gate.
func (r *Registry) Register(ctx context.Context, m domain.BlockManifest) error {
	return r.store.Register(ctx, m)
}

// Get returns the block with the exact identity.
func (r *Registry) Get(id domain.BlockID) (domain.BlockManifest, error) {
	return r.store.Get(id)
}

// Resolve returns the highest version satisfying ref.
func (r *Registry) Resolve(ref domain.BlockRef) (domain.BlockManifest, bool) {
	return r.store.Resolve(ref)
}

// Versions lists the registered versions of namespace/name, newest first.
func (r *Registry) Versions(namespace, name string) []string {
	return r.store.Versions(namespace, name)
}

// List returns the blocks matching f.
func (r *Registry) List(f registry.Filter) []domain.BlockManifest {
	return r.store.List(f)
}

// Stats summarizes the registry.
func (r *Registry) Stats() registry.Stats {
	return r.store.Stats()
}

// UpdateMetrics applies an additive metrics delta.
func (r *Registry) UpdateMetrics(ctx context.Context, id domain.BlockID, delta domain.MetricsDelta) (domain.BlockManifest, error) {
	return r.store.UpdateMetrics(ctx, id, delta)
}

// Transition moves a block along the lifecycle.
func (r *Registry) Transition(ctx context.Context, id domain.BlockID, to domain.LifecycleState) (domain.BlockManifest, error) {
	return r.lifecycle.Transition(ctx, id, to)
}

// SearchBySemantics ranks visible blocks against free text.
func (r *Registry) SearchBySemantics(ctx context.Context, text string, limit int, opts ...search.QueryOption) ([]search.Hit, error) {
	return r.search.BySemantics(ctx, text, limit, opts...)
}

// SearchByType ranks visible blocks whose signature fits input -> output.
// A zero Type leaves that side unconstrained.
func (r *Registry) SearchByType(ctx context.Context, input, output schema.Type, limit int, opts ...search.QueryOption) ([]search.Hit, error) {
	return r.search.ByType(ctx, input, output, limit, opts...)
}

// FindSimilar lists blocks sharing a tag and the exact signature of target.
func (r *Registry) FindSimilar(target domain.BlockManifest, opts ...search.QueryOption) []domain.BlockManifest {
	return r.search.FindSimilar(target, opts...)
}

// CheckDuplicate reports registered blocks that candidate may reinvent.
func (r *Registry) CheckDuplicate(candidate domain.BlockManifest) []search.Duplicate {
	return r.search.CheckDuplicate(candidate)
}

// Validate type-checks a composition graph against the registry.
func (r *Registry) Validate(ctx context.Context, g domain.CompositionGraph) (*domain.ValidatedGraph, error) {
	return r.validator.Validate(ctx, g)
}

// Requirement reports the types a block at atStep must accept and produce.
func (r *Registry) Requirement(g domain.CompositionGraph, atStep string) (validator.Requirement, error) {
	return r.validator.Requirement(g, atStep)
}

// Suggest ranks blocks that fit at atStep.
func (r *Registry) Suggest(ctx context.Context, g domain.CompositionGraph, atStep string, limit int, opts ...search.QueryOption) ([]search.Hit, error) {
	return r.validator.Suggest(ctx, g, atStep, limit, opts...)
}

// AutoWire feeds unconnected steps from the closest compatible earlier step.
func (r *Registry) AutoWire(g domain.CompositionGraph) (domain.CompositionGraph, []domain.Edge) {
	return r.validator.AutoWire(g)
}

// Gate returns the active promotion gate.
func (r *Registry) Gate() lifecycle.Gate {
	return r.lifecycle.Gate()
}

// Profiles lists the ranking profiles.
func (r *Registry) Profiles() []ranking.Profile {
	return r.ranker.Profiles()
}

// Store exposes the underlying block store, e.g. for metrics collectors.
func (r *Registry) Store() *registry.Store {
	return r.store
}
