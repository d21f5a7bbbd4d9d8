package domain

import (
	"strings"

	"github.com/aretw0/tessera/pkg/schema"
)

// Step is one node of a composition graph: a block reference plus optional
// literal configuration.
type Step struct {
	ID     string         `json:"id" yaml:"id"`
	Block  string         `json:"block" yaml:"block"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// HasConfig reports whether the step is fed by literal configuration.
func (s Step) HasConfig() bool { return len(s.Config) > 0 }

// Edge connects the output of one step to the input of another.
// Endpoints may be written "step" or "step.output" / "step.input".
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// FromStep returns the producing step id.
func (e Edge) FromStep() string { return strings.TrimSuffix(e.From, ".output") }

// ToStep returns the consuming step id.
func (e Edge) ToStep() string { return strings.TrimSuffix(e.To, ".input") }

func (e Edge) String() string { return e.FromStep() + ".output -> " + e.ToStep() + ".input" }

// CompositionGraph is a caller-owned description of wired blocks.
type CompositionGraph struct {
	Steps       []Step   `json:"steps" yaml:"steps"`
	Edges       []Edge   `json:"edges,omitempty" yaml:"edges,omitempty"`
	EntryPoints []string `json:"entryPoints,omitempty" yaml:"entryPoints,omitempty"`
	Terminals   []string `json:"terminals,omitempty" yaml:"terminals,omitempty"`
	MultiEntry  bool     `json:"multiEntry,omitempty" yaml:"multiEntry,omitempty"`
	MultiOutput bool     `json:"multiOutput,omitempty" yaml:"multiOutput,omitempty"`
	// Input is the declared type of the data entering the graph, if known.
	Input schema.Type `json:"input,omitempty" yaml:"input,omitempty"`
}

// Step returns the step with the given id.
func (g CompositionGraph) Step(id string) (Step, bool) {
	for _, s := range g.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Incoming returns the edges whose consumer is stepID.
func (g CompositionGraph) Incoming(stepID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.ToStep() == stepID {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns the edges whose producer is stepID.
func (g CompositionGraph) Outgoing(stepID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.FromStep() == stepID {
			out = append(out, e)
		}
	}
	return out
}

// ValidatedGraph is the result of a successful validation: the graph plus
// the resolved blocks and instantiated types the checks were run against.
type ValidatedGraph struct {
	Graph CompositionGraph `json:"graph"`
	// Blocks maps step id to the manifest it resolved to.
	Blocks map[string]BlockManifest `json:"blocks"`
	// Inputs and Outputs map step id to its signature after variable binding.
	Inputs  map[string]schema.Type `json:"inputs"`
	Outputs map[string]schema.Type `json:"outputs"`
	// Order is a topological order of the steps.
	Order     []string     `json:"order"`
	Sources   []string     `json:"sources"`
	Terminals []string     `json:"terminals"`
	Warnings  []Diagnostic `json:"warnings,omitempty"`
}
