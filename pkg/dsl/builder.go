package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
)

// ErrIncompleteStep is returned by Build when a step names no block.
var ErrIncompleteStep = errors.New("step has no block")

// Builder manages the graph construction. Steps keep their declaration order,
// which the validator uses for cycle reporting and auto-wiring.
type Builder struct {
	order []string
	steps map[string]*StepBuilder

	input       schema.Type
	inputErr    error
	multiEntry  bool
	multiOutput bool
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		steps: make(map[string]*StepBuilder),
	}
}

// Add creates a new step in the graph.
// If the step already exists, it returns the existing builder.
func (b *Builder) Add(id string) *StepBuilder {
	if sb, ok := b.steps[id]; ok {
		return sb
	}
	sb := &StepBuilder{
		step:    domain.Step{ID: id},
		builder: b,
	}
	b.steps[id] = sb
	b.order = append(b.order, id)
	return sb
}

// Chain adds one step per block ref, named s1, s2, ..., and wires each to
// the next. The last step is marked terminal.
func (b *Builder) Chain(refs ...string) *Builder {
	var prev *StepBuilder
	for i, ref := range refs {
		sb := b.Add(fmt.Sprintf("s%d", len(b.order)+1)).Use(ref)
		if prev != nil {
			prev.Go(sb.step.ID)
		}
		if i == len(refs)-1 {
			sb.Terminal()
		}
		prev = sb
	}
	return b
}

// Input declares the type of the data entering the graph.
func (b *Builder) Input(typ string) *Builder {
	t, err := schema.Parse(typ)
	if err != nil {
		b.inputErr = fmt.Errorf("graph input: %w", err)
		return b
	}
	b.input = t
	return b
}

// MultiEntry allows terminals to be reached from any one source.
func (b *Builder) MultiEntry() *Builder {
	b.multiEntry = true
	return b
}

// MultiOutput allows more than one terminal.
func (b *Builder) MultiOutput() *Builder {
	b.multiOutput = true
	return b
}

// Build compiles the builder into a CompositionGraph.
func (b *Builder) Build() (domain.CompositionGraph, error) {
	if b.inputErr != nil {
		return domain.CompositionGraph{}, b.inputErr
	}
	g := domain.CompositionGraph{
		Steps:       make([]domain.Step, 0, len(b.order)),
		Input:       b.input,
		MultiEntry:  b.multiEntry,
		MultiOutput: b.multiOutput,
	}

	var errs []error
	for _, id := range b.order {
		sb := b.steps[id]
		if sb.step.Block == "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrIncompleteStep, id))
		}
		g.Steps = append(g.Steps, sb.step)
		for _, to := range sb.next {
			g.Edges = append(g.Edges, domain.Edge{From: id, To: to})
		}
		if sb.entry {
			g.EntryPoints = append(g.EntryPoints, id)
		}
		if sb.terminal {
			g.Terminals = append(g.Terminals, id)
		}
	}
	if len(errs) > 0 {
		return domain.CompositionGraph{}, fmt.Errorf("failed to build graph: %w", &schema.AggregateError{Errors: errs})
	}
	return g, nil
}

// MustBuild is like Build but panics on error. Intended for tests.
func (b *Builder) MustBuild() domain.CompositionGraph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
