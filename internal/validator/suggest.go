package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/search"
)

var (
	// ErrUnknownStep is returned when Suggest targets a step the graph lacks.
	ErrUnknownStep = errors.New("unknown step")
	// ErrNoSearcher is returned by Suggest when no Searcher is configured.
	ErrNoSearcher = errors.New("no searcher configured")
)

// Requirement is the type context Suggest derived for a step.
type Requirement struct {
	Input  schema.Type `json:"input"`
	Output schema.Type `json:"output,omitempty"`
}

// Requirement computes the input a block at atStep must accept and, with
// WithDownstreamOutput, the output it must produce when the step feeds
// exactly one consumer. The partial graph does not need to be valid.
func (v *Validator) Requirement(g domain.CompositionGraph, atStep string) (Requirement, error) {
	a := v.analyze(g)
	if _, ok := a.index[atStep]; !ok {
		return Requirement{}, fmt.Errorf("%w: %q", ErrUnknownStep, atStep)
	}

	var req Requirement
	for _, from := range a.pred[atStep] {
		if out, ok := a.outputs[from]; ok {
			req.Input = a.subst.Apply(out)
			break
		}
	}
	if req.Input.IsZero() {
		switch in, ok := a.inputs[atStep]; {
		case !g.Input.IsZero() && (contains(a.sources, atStep) || len(a.pred[atStep]) == 0):
			req.Input = g.Input
		case ok:
			req.Input = a.subst.Apply(in)
		default:
			req.Input = schema.Any()
		}
	}

	if next := a.succ[atStep]; v.downstream && len(next) == 1 {
		if in, ok := a.inputs[next[0]]; ok {
			req.Output = a.subst.Apply(in)
		}
	}
	return req, nil
}

// Suggest ranks blocks that could sit at atStep given what feeds it and what
// it feeds.
func (v *Validator) Suggest(ctx context.Context, g domain.CompositionGraph, atStep string, limit int, opts ...search.QueryOption) ([]search.Hit, error) {
	if v.searcher == nil {
		return nil, ErrNoSearcher
	}
	req, err := v.Requirement(g, atStep)
	if err != nil {
		return nil, err
	}
	return v.searcher.ByType(ctx, req.Input, req.Output, limit, opts...)
}

// AutoWire returns a copy of g in which every step after the first that has
// no incoming edge, no config and is not an entry point is fed by the most
// recent earlier step whose output unifies with its input. The added edges
// are returned as well.
func (v *Validator) AutoWire(g domain.CompositionGraph) (domain.CompositionGraph, []domain.Edge) {
	a := v.analyze(g)

	out := g
	out.Edges = append([]domain.Edge{}, g.Edges...)
	var added []domain.Edge

	for i, id := range a.order {
		if i == 0 || len(a.pred[id]) > 0 || a.step(id).HasConfig() || contains(g.EntryPoints, id) {
			continue
		}
		in, ok := a.inputs[id]
		if !ok {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			prev := a.order[j]
			po, ok := a.outputs[prev]
			if !ok || !schema.Unify(po, in) {
				continue
			}
			e := domain.Edge{From: prev, To: id}
			out.Edges = append(out.Edges, e)
			added = append(added, e)
			break
		}
	}
	if len(added) > 0 {
		v.logger.Debug("Auto-wired steps", "edges", len(added))
	}
	return out, added
}
