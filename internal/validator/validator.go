// Package validator type-checks and structurally validates composition graphs
// against a consistent snapshot of the block registry.
//
// Validation runs every pass and collects every diagnostic; it never stops at
// the first problem and never writes to the registry.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/search"
)

const (
	// DefaultMaxCycles bounds the number of CycleDetected diagnostics per call.
	DefaultMaxCycles = 100
	// DefaultUnwrapBlock is suggested when a Result or Option feeds its payload type.
	DefaultUnwrapBlock = "core/unwrap"
)

// Resolver takes consistent snapshots of the registry.
type Resolver interface {
	Snapshot(refs ...domain.BlockRef) *registry.Snapshot
}

// Searcher answers type queries for Suggest.
type Searcher interface {
	ByType(ctx context.Context, input, output schema.Type, limit int, opts ...search.QueryOption) ([]search.Hit, error)
}

// Validator checks composition graphs.
type Validator struct {
	resolver    Resolver
	searcher    Searcher
	maxCycles   int
	lenient     bool
	unwrapBlock string
	downstream  bool

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the Validator.
type Option func(*Validator)

// WithSearcher enables Suggest.
func WithSearcher(s Searcher) Option {
	return func(v *Validator) {
		v.searcher = s
	}
}

// WithMaxCycles overrides DefaultMaxCycles.
func WithMaxCycles(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxCycles = n
		}
	}
}

// WithLenientResultUnwrap accepts a Result<T,E> or Option<T> feeding T with
// only an UnhandledResult warning. By default the edge is also a TypeMismatch.
func WithLenientResultUnwrap(lenient bool) Option {
	return func(v *Validator) {
		v.lenient = lenient
	}
}

// WithUnwrapBlock names the block suggested by UnhandledResult diagnostics.
func WithUnwrapBlock(ref string) Option {
	return func(v *Validator) {
		if ref != "" {
			v.unwrapBlock = ref
		}
	}
}

// WithDownstreamOutput makes Requirement also constrain the output when the
// step feeds exactly one consumer. Off by default, Suggest then matches on
// the input alone.
func WithDownstreamOutput(enabled bool) Option {
	return func(v *Validator) {
		v.downstream = enabled
	}
}

// WithLogger configures a logger for the Validator.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithHooks registers observability callbacks. Only OnValidate is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(v *Validator) {
		v.hooks = hooks
	}
}

// WithTracer records a span per validation.
func WithTracer(tracer trace.Tracer) Option {
	return func(v *Validator) {
		v.tracer = tracer
	}
}

// New creates a Validator resolving blocks through resolver.
func New(resolver Resolver, opts ...Option) *Validator {
	v := &Validator{
		resolver:    resolver,
		maxCycles:   DefaultMaxCycles,
		unwrapBlock: DefaultUnwrapBlock,
		logger:      logging.NewNop(),
		tracer:      noop.NewTracerProvider().Tracer("validator"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks g. On success it returns the validated graph with any
// warnings; otherwise the error is a *domain.WiringErrors listing every
// error and warning found.
func (v *Validator) Validate(ctx context.Context, g domain.CompositionGraph) (vg *domain.ValidatedGraph, err error) {
	start := v.now()
	ctx, span := v.tracer.Start(ctx, "validator.Validate", trace.WithAttributes(
		attribute.Int("graph.steps", len(g.Steps)),
		attribute.Int("graph.edges", len(g.Edges)),
	))

	a := v.analyze(g)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid wiring")
		}
		span.End()
		if v.hooks.OnValidate != nil {
			v.hooks.OnValidate(ctx, &domain.ValidationEvent{
				EventBase: domain.EventBase{Timestamp: v.now(), Type: domain.EventGraphValidated},
				Steps:     len(g.Steps),
				Errors:    len(a.errs),
				Warnings:  len(a.warns),
				Duration:  v.now().Sub(start),
			})
		}
	}()

	if len(a.errs) > 0 {
		v.logger.Debug("Graph rejected", "errors", len(a.errs), "warnings", len(a.warns))
		return nil, &domain.WiringErrors{Errors: a.errs, Warnings: a.warns}
	}
	return a.result(), nil
}

// analysis is the state of one validation run.
type analysis struct {
	v *Validator
	g domain.CompositionGraph

	order []string               // step ids in declaration order
	index map[string]int         // step id -> declaration index
	byID  map[string]domain.Step // first declaration of each id
	edges []domain.Edge          // edges between known steps, deduplicated
	succ  map[string][]string
	pred  map[string][]string

	blocks  map[string]domain.BlockManifest
	inputs  map[string]schema.Type
	outputs map[string]schema.Type
	subst   *schema.Subst

	cyclic    map[string]bool
	sources   []string
	terminals []string
	reached   map[string]bool
	topo      []string

	errs  []domain.Diagnostic
	warns []domain.Diagnostic
}

func (v *Validator) analyze(g domain.CompositionGraph) *analysis {
	a := &analysis{
		v:       v,
		g:       g,
		index:   make(map[string]int),
		byID:    make(map[string]domain.Step),
		succ:    make(map[string][]string),
		pred:    make(map[string][]string),
		blocks:  make(map[string]domain.BlockManifest),
		inputs:  make(map[string]schema.Type),
		outputs: make(map[string]schema.Type),
		subst:   schema.NewSubst(),
		cyclic:  make(map[string]bool),
		reached: make(map[string]bool),
	}

	if len(g.Steps) == 0 {
		a.checkEmpty()
		return a
	}

	a.checkStructure()
	a.resolve()
	a.checkCycles()
	a.findSources()
	a.typeCheck()
	a.checkCompleteness()
	return a
}

func (a *analysis) errorf(d domain.Diagnostic, format string, args ...any) {
	d.Severity = domain.SeverityError
	d.Message = fmt.Sprintf(format, args...)
	a.errs = append(a.errs, d)
}

func (a *analysis) warnf(d domain.Diagnostic, format string, args ...any) {
	d.Severity = domain.SeverityWarning
	d.Message = fmt.Sprintf(format, args...)
	a.warns = append(a.warns, d)
}

// checkEmpty handles a graph without steps: only declared terminals can fail.
func (a *analysis) checkEmpty() {
	for _, t := range a.g.Terminals {
		a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable, Step: t},
			"terminal %q is declared but the graph has no steps", t)
	}
	for _, e := range a.g.Edges {
		edge := e
		a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownStep, Edge: &edge},
			"edge %s refers to steps that do not exist", e)
	}
}

// checkStructure indexes steps and edges, reporting duplicate ids and edges
// or declarations that name unknown steps.
func (a *analysis) checkStructure() {
	for _, s := range a.g.Steps {
		if s.ID == "" {
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownStep}, "step referencing %q has no id", s.Block)
			continue
		}
		if _, dup := a.index[s.ID]; dup {
			a.errorf(domain.Diagnostic{Kind: domain.DiagDuplicateStep, Step: s.ID}, "step id %q is declared more than once", s.ID)
			continue
		}
		a.index[s.ID] = len(a.order)
		a.order = append(a.order, s.ID)
		a.byID[s.ID] = s
	}

	seen := make(map[[2]string]bool)
	for _, e := range a.g.Edges {
		from, to := e.FromStep(), e.ToStep()
		_, okFrom := a.index[from]
		_, okTo := a.index[to]
		if !okFrom || !okTo {
			edge := e
			missing := from
			if okFrom {
				missing = to
			}
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownStep, Step: missing, Edge: &edge},
				"edge %s refers to unknown step %q", e, missing)
			continue
		}
		key := [2]string{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true
		a.edges = append(a.edges, domain.Edge{From: from, To: to})
		a.succ[from] = append(a.succ[from], to)
		a.pred[to] = append(a.pred[to], from)
	}

	for _, id := range a.g.EntryPoints {
		if _, ok := a.index[id]; !ok {
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownStep, Step: id}, "entry point %q is not a step", id)
		}
	}
	for _, id := range a.g.Terminals {
		if _, ok := a.index[id]; !ok {
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownStep, Step: id}, "terminal %q is not a step", id)
		}
	}
}

// resolve looks every step's block up in a single registry snapshot and
// instantiates its signature with variables scoped to the step.
func (a *analysis) resolve() {
	refs := make(map[string]domain.BlockRef, len(a.order))
	all := make([]domain.BlockRef, 0, len(a.order))
	for _, s := range a.steps() {
		ref, err := domain.ParseRef(s.Block)
		if err != nil {
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownBlock, Step: s.ID, Found: s.Block},
				"step %q: %v", s.ID, err)
			continue
		}
		refs[s.ID] = ref
		all = append(all, ref)
	}

	snap := a.v.resolver.Snapshot(all...)
	for _, s := range a.steps() {
		ref, ok := refs[s.ID]
		if !ok {
			continue
		}
		m, ok := snap.Lookup(ref)
		if !ok {
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnknownBlock, Step: s.ID, Found: ref.String()},
				"step %q: no registered block satisfies %s", s.ID, ref)
			continue
		}
		if m.State == domain.StateDeprecated || m.State == domain.StateArchived {
			a.warnf(domain.Diagnostic{Kind: domain.DiagDeprecatedBlock, Step: s.ID, Found: m.ID().String()},
				"step %q uses %s block %s", s.ID, m.State, m.ID())
		}
		a.blocks[s.ID] = m
		a.inputs[s.ID] = m.Signature.Input.Instantiate(s.ID)
		a.outputs[s.ID] = m.Signature.Output.Instantiate(s.ID)
	}
}

// steps returns the indexed steps in declaration order.
func (a *analysis) steps() []domain.Step {
	out := make([]domain.Step, len(a.order))
	for i, id := range a.order {
		out[i] = a.byID[id]
	}
	return out
}

func (a *analysis) step(id string) domain.Step { return a.byID[id] }

// findSources determines entry points and marks every step they reach.
//
// Declared entry points win. Otherwise every input-less step is a source in a
// multi-entry graph; in a single-entry graph the first declared step and any
// input-less step fed by config are. When nothing qualifies the first step
// is used, unless it lies on a cycle.
func (a *analysis) findSources() {
	switch {
	case len(a.g.EntryPoints) > 0:
		for _, id := range a.g.EntryPoints {
			if _, ok := a.index[id]; ok && !contains(a.sources, id) {
				a.sources = append(a.sources, id)
			}
		}
	default:
		for i, id := range a.order {
			if len(a.pred[id]) > 0 {
				continue
			}
			if a.g.MultiEntry || i == 0 || a.step(id).HasConfig() {
				a.sources = append(a.sources, id)
			}
		}
		if len(a.sources) == 0 && len(a.order) > 0 {
			// A step inside a cycle cannot stand in as the entry: the
			// cycle would count as reached and get type-checked.
			if first := a.order[0]; !a.cyclic[first] {
				a.sources = append(a.sources, first)
			} else {
				a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable},
					"graph has no entry point: every step has an incoming edge")
			}
		}
	}

	for _, s := range a.sources {
		for id := range a.reach(s) {
			a.reached[id] = true
		}
	}
}

// reach returns the steps reachable from start, start included.
func (a *analysis) reach(start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range a.succ[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// typeCheck unifies every edge in topological order under one substitution,
// so variables bound upstream constrain downstream steps.
func (a *analysis) typeCheck() {
	a.topo = a.topologicalOrder()

	checked := make(map[domain.Edge]bool, len(a.edges))
	for _, from := range a.topo {
		for _, to := range a.succ[from] {
			e := domain.Edge{From: from, To: to}
			checked[e] = true
			a.checkEdge(e)
		}
	}
	// Edges left over touch a cycle or lie downstream of one.
	for _, e := range a.edges {
		if checked[e] {
			continue
		}
		if a.cyclic[e.From] && a.cyclic[e.To] && !a.reached[e.From] {
			continue
		}
		a.checkEdge(e)
	}
}

func (a *analysis) checkEdge(e domain.Edge) {
	out, okOut := a.outputs[e.From]
	in, okIn := a.inputs[e.To]
	if !okOut || !okIn {
		return
	}
	if schema.UnifyWith(a.subst, out, in) {
		return
	}

	edge := e
	expected := a.subst.Apply(in)
	found := a.subst.Apply(out)

	if payload, ok := found.Unwrapped(); ok && schema.UnifyWith(schema.NewSubst(), payload, expected) {
		hint := fmt.Sprintf("insert %s between %q and %q", a.v.unwrapBlock, e.From, e.To)
		a.warnf(domain.Diagnostic{
			Kind:       domain.DiagUnhandledResult,
			Step:       e.To,
			Edge:       &edge,
			Expected:   expected.String(),
			Found:      found.String(),
			Suggestion: hint,
		}, "%s from %q reaches %q unhandled", found.Kind(), e.From, e.To)
		if a.v.lenient {
			schema.UnifyWith(a.subst, payload, in)
			return
		}
		a.errorf(domain.Diagnostic{
			Kind:       domain.DiagTypeMismatch,
			Step:       e.To,
			Edge:       &edge,
			Expected:   expected.String(),
			Found:      found.String(),
			Suggestion: hint,
		}, "%s: %q expects %s, got %s", e, e.To, expected, found)
		return
	}

	a.errorf(domain.Diagnostic{
		Kind:     domain.DiagTypeMismatch,
		Step:     e.To,
		Edge:     &edge,
		Expected: expected.String(),
		Found:    found.String(),
	}, "%s: %q expects %s, got %s", e, e.To, expected, found)
}

// topologicalOrder returns the steps not on or behind a cycle, ordered by
// dependency and then by declaration.
func (a *analysis) topologicalOrder() []string {
	indeg := make(map[string]int, len(a.order))
	for _, id := range a.order {
		indeg[id] = len(a.pred[id])
	}
	var queue, out []string
	for _, id := range a.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, next := range a.succ[cur] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return out
}

// checkCompleteness verifies terminals against sources.
func (a *analysis) checkCompleteness() {
	for _, id := range a.order {
		if len(a.pred[id]) == 0 && !a.step(id).HasConfig() && !contains(a.sources, id) {
			a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable, Step: id},
				"step %q has no incoming edge, no config and is not an entry point", id)
		}
	}

	switch {
	case len(a.g.Terminals) > 0:
		for _, id := range a.g.Terminals {
			if _, ok := a.index[id]; ok && !contains(a.terminals, id) {
				a.terminals = append(a.terminals, id)
			}
		}
	default:
		for _, id := range a.order {
			if len(a.succ[id]) == 0 && a.reached[id] {
				a.terminals = append(a.terminals, id)
			}
		}
	}

	if len(a.terminals) > 1 && !a.g.MultiOutput {
		a.errorf(domain.Diagnostic{Kind: domain.DiagMultipleTerminals, Found: fmt.Sprint(a.terminals)},
			"graph has %d terminals %v but is not declared multi-output", len(a.terminals), a.terminals)
	}

	flagged := make(map[string]bool)
	for _, d := range a.errs {
		if d.Kind == domain.DiagUnreachable {
			flagged[d.Step] = true
		}
	}

	reachFrom := make(map[string]map[string]bool, len(a.sources))
	for _, s := range a.sources {
		reachFrom[s] = a.reach(s)
	}

	for _, t := range a.terminals {
		if a.g.MultiEntry {
			if !a.reached[t] && !flagged[t] {
				flagged[t] = true
				a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable, Step: t},
					"terminal %q is not reachable from any entry point", t)
			}
			continue
		}
		for _, s := range a.sources {
			if !reachFrom[s][t] {
				a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable, Step: t},
					"terminal %q is not reachable from entry point %q", t, s)
				flagged[t] = true
			}
		}
	}

	if a.g.MultiEntry && len(a.terminals) > 0 {
		for _, s := range a.sources {
			if !reachesAny(reachFrom[s], a.terminals) && !flagged[s] {
				flagged[s] = true
				a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable, Step: s},
					"entry point %q reaches no terminal", s)
			}
		}
	}

	// Steps no source reaches, unless they hang off a step already reported.
	covered := make(map[string]bool)
	for id := range flagged {
		if len(a.pred[id]) == 0 {
			for r := range a.reach(id) {
				covered[r] = true
			}
		}
	}
	for _, id := range a.order {
		if a.reached[id] || flagged[id] || covered[id] {
			continue
		}
		flagged[id] = true
		a.errorf(domain.Diagnostic{Kind: domain.DiagUnreachable, Step: id},
			"step %q is not reachable from any entry point", id)
	}
}

func (a *analysis) result() *domain.ValidatedGraph {
	vg := &domain.ValidatedGraph{
		Graph:     a.g,
		Blocks:    a.blocks,
		Inputs:    make(map[string]schema.Type, len(a.inputs)),
		Outputs:   make(map[string]schema.Type, len(a.outputs)),
		Order:     a.topo,
		Sources:   a.sources,
		Terminals: a.terminals,
		Warnings:  a.warns,
	}
	for id, t := range a.inputs {
		vg.Inputs[id] = a.subst.Apply(t)
	}
	for id, t := range a.outputs {
		vg.Outputs[id] = a.subst.Apply(t)
	}
	return vg
}

func reachesAny(reach map[string]bool, targets []string) bool {
	for _, t := range targets {
		if reach[t] {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
