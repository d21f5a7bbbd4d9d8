package dsl

import "github.com/aretw0/tessera/pkg/domain"

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step     domain.Step
	builder  *Builder
	next     []string
	entry    bool
	terminal bool
}

// Use sets the block reference the step runs, e.g. "core/unwrap@^1.0.0".
func (s *StepBuilder) Use(ref string) *StepBuilder {
	s.step.Block = ref
	return s
}

// Config adds a literal configuration value. Steps with config count as fed
// even without an incoming edge.
func (s *StepBuilder) Config(key string, value any) *StepBuilder {
	if s.step.Config == nil {
		s.step.Config = make(map[string]any)
	}
	s.step.Config[key] = value
	return s
}

// Go wires this step's output to the target step's input.
func (s *StepBuilder) Go(target string) *StepBuilder {
	s.next = append(s.next, target)
	return s
}

// Entry declares the step as an entry point.
func (s *StepBuilder) Entry() *StepBuilder {
	s.entry = true
	return s
}

// Terminal declares the step as a terminal (end of the graph).
func (s *StepBuilder) Terminal() *StepBuilder {
	s.terminal = true
	return s
}

// Then adds or returns the target step and wires this step into it.
func (s *StepBuilder) Then(id string) *StepBuilder {
	s.Go(id)
	return s.builder.Add(id)
}

// Build returns the underlying domain.Step.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StepBuilder) Build() domain.Step {
	return s.step
}
