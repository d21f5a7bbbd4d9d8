package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tessera/pkg/domain"
)

// Chain combines several hook sets into one. Callbacks run in argument order;
// nil callbacks are skipped.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnRegister = chain(out.OnRegister, h.OnRegister)
		out.OnMetricsUpdate = chain(out.OnMetricsUpdate, h.OnMetricsUpdate)
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
		out.OnValidate = chain(out.OnValidate, h.OnValidate)
		out.OnSearch = chain(out.OnSearch, h.OnSearch)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LogHooks returns hooks that log every registry event on logger.
// Failed writes are logged at warn level, everything else at debug.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	block := func(ctx context.Context, e *domain.BlockEvent) {
		attrs := []any{"id", e.ID.String()}
		if e.From != "" || e.To != "" {
			attrs = append(attrs, "from", e.From, "to", e.To)
		}
		if e.Err != nil {
			logger.WarnContext(ctx, string(e.Type)+" failed", append(attrs, "err", e.Err)...)
			return
		}
		logger.DebugContext(ctx, string(e.Type), attrs...)
	}
	return domain.LifecycleHooks{
		OnRegister:      block,
		OnMetricsUpdate: block,
		OnTransition:    block,
		OnValidate: func(ctx context.Context, e *domain.ValidationEvent) {
			logger.DebugContext(ctx, string(e.Type),
				"steps", e.Steps, "errors", e.Errors, "warnings", e.Warnings, "duration", e.Duration)
		},
		OnSearch: func(ctx context.Context, e *domain.SearchEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "search failed", "mode", e.Mode, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, string(e.Type),
				"mode", e.Mode, "results", e.Results, "cache_hit", e.CacheHit, "duration", e.Duration)
		},
	}
}
