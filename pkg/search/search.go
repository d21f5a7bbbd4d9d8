// Package search finds blocks by meaning and by type signature.
//
// Results are ranked by the ranking package. Semantic raw scores come from an
// injected ports.SemanticScorer and are cached per registry generation, so
// any write to the registry invalidates them.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/lifecycle"
	"github.com/aretw0/tessera/pkg/ports"
	"github.com/aretw0/tessera/pkg/ranking"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
)

// ErrNoScorer is returned by BySemantics when no SemanticScorer is configured.
var ErrNoScorer = errors.New("no semantic scorer configured")

const (
	DefaultLimit   = 10
	DefaultTimeout = 2 * time.Second
	DefaultTTL     = 5 * time.Minute
)

// Index is the read side of the block store used by search.
type Index interface {
	List(f registry.Filter) []domain.BlockManifest
	Generation() uint64
}

// Hit is one ranked search result.
type Hit struct {
	Block domain.BlockManifest `json:"block"`
	Score float64              `json:"score"`
	// Semantic is the raw scorer match, zero for type searches.
	Semantic   float64 `json:"semantic,omitempty"`
	Deprecated bool    `json:"deprecated,omitempty"`
}

// Engine answers search queries against an Index.
type Engine struct {
	index   Index
	ranker  *ranking.Engine
	scorer  ports.SemanticScorer
	profile ranking.Profile
	limit   int
	timeout time.Duration

	cache  *gocache.Cache
	flight singleflight.Group

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithScorer sets the semantic scorer.
func WithScorer(s ports.SemanticScorer) Option {
	return func(e *Engine) {
		e.scorer = s
	}
}

// WithProfile sets the ranking profile used when a query names none.
func WithProfile(p ranking.Profile) Option {
	return func(e *Engine) {
		e.profile = p
	}
}

// WithDefaultLimit caps results when a query passes limit <= 0.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithTimeout bounds each scorer call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCacheTTL sets how long semantic scores are kept.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cache = gocache.New(d, 2*d)
		}
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks registers observability callbacks. Only OnSearch is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithTracer records spans for searches.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over index, ranking with ranker.
func New(index Index, ranker *ranking.Engine, opts ...Option) *Engine {
	e := &Engine{
		index:   index,
		ranker:  ranker,
		profile: ranking.ProfileDefault,
		limit:   DefaultLimit,
		timeout: DefaultTimeout,
		cache:   gocache.New(DefaultTTL, 2*DefaultTTL),
		logger:  logging.NewNop(),
		tracer:  noop.NewTracerProvider().Tracer("search"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query narrows and ranks a search.
type Query struct {
	// States replaces lifecycle.DefaultVisible when non-empty.
	States    []domain.LifecycleState
	Profile   ranking.Profile
	Namespace string
	Tags      []string
	Category  string
}

// QueryOption configures a single search call.
type QueryOption func(*Query)

// WithStates makes blocks in the given states visible, replacing the default set.
func WithStates(states ...domain.LifecycleState) QueryOption {
	return func(q *Query) {
		q.States = append(q.States, states...)
	}
}

// WithRanking ranks this call with profile p.
func WithRanking(p ranking.Profile) QueryOption {
	return func(q *Query) {
		q.Profile = p
	}
}

// InNamespace restricts results to one namespace.
func InNamespace(ns string) QueryOption {
	return func(q *Query) {
		q.Namespace = ns
	}
}

// WithTags boosts blocks carrying any of tags.
func WithTags(tags ...string) QueryOption {
	return func(q *Query) {
		q.Tags = append(q.Tags, tags...)
	}
}

// WithCategory boosts blocks in category c.
func WithCategory(c string) QueryOption {
	return func(q *Query) {
		q.Category = c
	}
}

func (e *Engine) query(opts []QueryOption) (Query, error) {
	q := Query{Profile: e.profile}
	for _, opt := range opts {
		opt(&q)
	}
	if _, err := e.ranker.Weights(q.Profile); err != nil {
		return q, err
	}
	return q, nil
}

// candidates returns the visible blocks for q.
func (e *Engine) candidates(q Query) []domain.BlockManifest {
	all := e.index.List(registry.Filter{Namespace: q.Namespace})
	out := all[:0]
	for _, b := range all {
		if lifecycle.Visible(b.State, q.States) {
			out = append(out, b)
		}
	}
	return out
}

// BySemantics returns visible blocks with a positive semantic match for
// text, ranked best first.
func (e *Engine) BySemantics(ctx context.Context, text string, limit int, opts ...QueryOption) (hits []Hit, err error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "search.BySemantics", trace.WithAttributes(attribute.String("search.query", text)))
	var cacheHit bool
	defer func() {
		e.finish(ctx, span, "semantic", len(hits), cacheHit, start, err)
	}()

	if e.scorer == nil {
		return nil, ErrNoScorer
	}
	q, err := e.query(opts)
	if err != nil {
		return nil, err
	}

	raw, cacheHit, err := e.semanticScores(ctx, text)
	if err != nil {
		return nil, err
	}

	cands := e.candidates(q)
	rc := e.rankContext(q, cands)
	for _, b := range cands {
		sem := raw[b.ID()]
		if sem <= 0 {
			continue
		}
		rc.Semantic = sem
		score, err := e.ranker.Score(b, rc)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Block: b, Score: score, Semantic: sem, Deprecated: b.State == domain.StateDeprecated})
	}
	return e.top(hits, limit), nil
}

// semanticScores returns the raw scores of every block for text. Concurrent
// identical queries share one scorer call. The shared call is detached from
// any single caller's cancellation and bounded only by the scorer timeout;
// each caller stops waiting when its own ctx is done.
func (e *Engine) semanticScores(ctx context.Context, text string) (map[domain.BlockID]float64, bool, error) {
	key := fmt.Sprintf("%d:%s", e.index.Generation(), text)
	if v, ok := e.cache.Get(key); ok {
		if scores, ok := v.(map[domain.BlockID]float64); ok {
			return scores, true, nil
		}
		e.logger.Error("Wrong type in semantic cache", "key", key)
	}

	shared := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (any, error) {
		if v, ok := e.cache.Get(key); ok {
			return v, nil
		}
		scoreCtx, cancel := context.WithTimeout(shared, e.timeout)
		defer cancel()

		scores, err := e.scorer.Score(scoreCtx, text, e.index.List(registry.Filter{}))
		if err != nil {
			e.logger.Warn("Semantic scorer failed", "query", text, "error", err)
			return nil, fmt.Errorf("semantic scorer failed: %w", err)
		}
		e.cache.SetDefault(key, scores)
		return scores, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(map[domain.BlockID]float64), false, nil
	}
}

// ByType returns visible blocks whose signature unifies with input -> output.
// A zero Type leaves that side unconstrained. Type variables in a block's
// signature are bound once per candidate, so both sides must agree.
func (e *Engine) ByType(ctx context.Context, input, output schema.Type, limit int, opts ...QueryOption) (hits []Hit, err error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "search.ByType", trace.WithAttributes(
		attribute.String("search.input", input.String()),
		attribute.String("search.output", output.String()),
	))
	defer func() {
		e.finish(ctx, span, "type", len(hits), false, start, err)
	}()

	q, err := e.query(opts)
	if err != nil {
		return nil, err
	}

	cands := e.candidates(q)
	rc := e.rankContext(q, cands)
	for _, b := range cands {
		if !Matches(b.Signature, b.ID().String(), input, output) {
			continue
		}
		score, err := e.ranker.Score(b, rc)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Block: b, Score: score, Deprecated: b.State == domain.StateDeprecated})
	}
	return e.top(hits, limit), nil
}

// Matches reports whether sig, with its variables instantiated in scope,
// unifies with input and output under a single substitution.
func Matches(sig domain.Signature, scope string, input, output schema.Type) bool {
	s := schema.NewSubst()
	if !input.IsZero() && !schema.UnifyWith(s, input, sig.Input.Instantiate(scope)) {
		return false
	}
	if !output.IsZero() && !schema.UnifyWith(s, output, sig.Output.Instantiate(scope)) {
		return false
	}
	return true
}

func (e *Engine) rankContext(q Query, cands []domain.BlockManifest) ranking.Context {
	return ranking.Context{
		Profile:  q.Profile,
		MaxUsage: ranking.MaxUsage(cands),
		Tags:     q.Tags,
		Category: q.Category,
		Now:      e.now(),
	}
}

// top sorts hits by score, usage, namespace/name and newest version, then
// truncates to limit.
func (e *Engine) top(hits []Hit, limit int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Block.Metrics.UsageCount != b.Block.Metrics.UsageCount {
			return a.Block.Metrics.UsageCount > b.Block.Metrics.UsageCount
		}
		if ka, kb := a.Block.ID().Key(), b.Block.ID().Key(); ka != kb {
			return ka < kb
		}
		return compareVersions(a.Block.Version, b.Block.Version) > 0
	})
	if limit <= 0 {
		limit = e.limit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func (e *Engine) finish(ctx context.Context, span trace.Span, mode string, n int, cacheHit bool, start time.Time, err error) {
	span.SetAttributes(attribute.Int("search.results", n), attribute.Bool("search.cache_hit", cacheHit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("Search failed", "mode", mode, "err", err)
	}
	span.End()

	if e.hooks.OnSearch != nil {
		e.hooks.OnSearch(ctx, &domain.SearchEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventSearch},
			Mode:      mode,
			Results:   n,
			CacheHit:  cacheHit,
			Duration:  e.now().Sub(start),
			Err:       err,
		})
	}
}
