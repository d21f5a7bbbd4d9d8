package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
)

// Overlay carries validation results to draw on top of a graph.
type Overlay struct {
	// Outputs labels each edge with the producer's output type.
	Outputs     map[string]schema.Type
	Diagnostics []domain.Diagnostic
}

// NewOverlay builds an overlay from a Validate call. Either argument may be
// nil; an error that carries no diagnostics yields an empty overlay.
func NewOverlay(vg *domain.ValidatedGraph, err error) *Overlay {
	o := &Overlay{}
	if vg != nil {
		o.Outputs = vg.Outputs
		o.Diagnostics = append(o.Diagnostics, vg.Warnings...)
	}
	var we *domain.WiringErrors
	if errors.As(err, &we) {
		o.Diagnostics = append(o.Diagnostics, we.Errors...)
		o.Diagnostics = append(o.Diagnostics, we.Warnings...)
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart for a composition graph.
// Shapes follow the role of each step:
// - Entry point: ((Circle))
// - Configured (literal input): [/Parallelogram/]
// - Terminal: ([Stadium])
// - Default: [Rectangle]
// With an overlay, edges carry the type flowing through them and steps or
// edges named by diagnostics are styled by severity.
func GenerateMermaid(g domain.CompositionGraph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, step := range g.Steps {
		safeID := sanitizeMermaidID(step.ID)

		opener, closer := "[", "]"
		switch {
		case slices.Contains(g.EntryPoints, step.ID):
			opener, closer = "((", "))"
		case step.HasConfig():
			opener, closer = "[/", "/]"
		case slices.Contains(g.Terminals, step.ID):
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s<br/><small>%s</small>\"%s\n",
			safeID, opener, escapeLabel(step.ID), escapeLabel(step.Block), closer)
	}

	badEdges := map[domain.Edge]domain.Severity{}
	if overlay != nil {
		for _, d := range overlay.Diagnostics {
			if d.Edge != nil {
				key := domain.Edge{From: d.Edge.FromStep(), To: d.Edge.ToStep()}
				if badEdges[key] != domain.SeverityError {
					badEdges[key] = d.Severity
				}
			}
		}
	}

	for _, e := range g.Edges {
		from, to := e.FromStep(), e.ToStep()
		arrow := "-->"
		if _, bad := badEdges[domain.Edge{From: from, To: to}]; bad {
			arrow = "-.->"
		}
		if overlay != nil {
			if t, ok := overlay.Outputs[from]; ok {
				if arrow == "-->" {
					arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(t.String()))
				} else {
					arrow = fmt.Sprintf("-. \"%s\" .->", escapeLabel(t.String()))
				}
			}
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(from), arrow, sanitizeMermaidID(to))
	}

	if overlay != nil && len(overlay.Diagnostics) > 0 {
		sb.WriteString("\n    %% Diagnostics\n")
		sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,stroke-width:3px,color:#000;\n")
		sb.WriteString("    classDef warning fill:#fff8e1,stroke:#f9a825,stroke-width:2px,color:#000;\n")

		severity := map[string]domain.Severity{}
		var order []string
		mark := func(id string, sev domain.Severity) {
			if _, ok := g.Step(id); !ok {
				return
			}
			prev, seen := severity[id]
			if !seen {
				order = append(order, id)
			}
			if prev != domain.SeverityError {
				severity[id] = sev
			}
		}
		for _, d := range overlay.Diagnostics {
			if d.Step != "" {
				mark(d.Step, d.Severity)
			}
			for _, id := range d.Cycle {
				mark(id, d.Severity)
			}
		}
		for _, id := range order {
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(id), severity[id])
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, "<", "#lt;")
	return strings.ReplaceAll(s, ">", "#gt;")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
