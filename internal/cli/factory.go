package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/tessera"
	"github.com/aretw0/tessera/internal/config"
	"github.com/aretw0/tessera/internal/tracing"
	"github.com/aretw0/tessera/internal/validator"
	"github.com/aretw0/tessera/pkg/adapters/loam"
	"github.com/aretw0/tessera/pkg/adapters/redis"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/observability"
	"github.com/aretw0/tessera/pkg/ranking"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/search"
)

// Runtime bundles a configured Registry with the process-level resources
// the commands share.
type Runtime struct {
	Config   config.Config
	Registry *tessera.Registry
	Logger   *slog.Logger
	// Gatherer serves the metrics collected by the registry hooks.
	Gatherer prometheus.Gatherer
}

// Close releases the registry and everything it owns.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.Registry.Close(ctx)
}

// Open builds a Registry from cfg with standard CLI conventions:
// storage backend, tracing, metrics + log hooks, the catalog directory and
// the stdlib seed. Extra hooks run after the built-in ones.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, extra ...domain.LifecycleHooks) (*Runtime, error) {
	profile, err := ranking.ParseProfile(cfg.Ranking.Profile)
	if err != nil {
		return nil, err
	}

	var reg *tessera.Registry
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(promReg, observability.StatsFunc(func() registry.Stats {
		if reg == nil {
			return registry.Stats{}
		}
		return reg.Stats()
	}))
	if err != nil {
		return nil, err
	}

	provider, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	closers := []func(context.Context) error{provider.Shutdown}
	fail := func(err error) (*Runtime, error) {
		errs := []error{err}
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return nil, errors.Join(errs...)
	}

	opts := []tessera.Option{
		tessera.WithLogger(logger),
		tessera.WithTracer(provider.Tracer()),
		tessera.WithHooks(observability.Chain(append([]domain.LifecycleHooks{metrics.Hooks(), observability.LogHooks(logger)}, extra...)...)),
		tessera.WithRanking(cfg.RankerConfig()),
		tessera.WithProfile(profile),
		tessera.WithGate(cfg.Lifecycle.StableGate),
		tessera.WithSearchOptions(
			search.WithTimeout(cfg.Search.SemanticTimeout),
			search.WithCacheTTL(cfg.Search.CacheTTL),
			search.WithDefaultLimit(cfg.Search.DefaultLimit),
		),
		tessera.WithValidatorOptions(
			validator.WithMaxCycles(cfg.Validator.MaxCycles),
			validator.WithLenientResultUnwrap(cfg.Validator.LenientResultUnwrap),
			validator.WithUnwrapBlock(cfg.Validator.UnwrapBlock),
			validator.WithDownstreamOutput(cfg.Validator.SuggestDownstreamOutput),
		),
	}

	if cfg.Storage.Backend == config.BackendRedis {
		rc := cfg.Storage.Redis
		store := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix))
		closers = append(closers, func(context.Context) error { return store.Close() })
		if err := store.Client().Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err))
		}
		opts = append(opts,
			tessera.WithManifestStore(store),
			tessera.WithLocker(redis.NewLocker(store.Client(), store.Prefix()), cfg.Storage.LockTTL),
		)
		logger.Debug("Using redis storage", "addr", rc.Addr, "prefix", rc.Prefix)
	}

	if cfg.SeedStdlib {
		opts = append(opts, tessera.WithStdlib())
	}
	if cfg.CatalogDir != "" {
		loader, err := loam.Open(cfg.CatalogDir)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, tessera.WithCatalog(loader))
	}

	for _, c := range closers {
		opts = append(opts, tessera.WithCloser(c))
	}
	reg, err = tessera.New(ctx, opts...)
	if err != nil {
		return fail(fmt.Errorf("error initializing registry: %w", err))
	}

	return &Runtime{
		Config:   cfg,
		Registry: reg,
		Logger:   logger,
		Gatherer: promReg,
	}, nil
}
