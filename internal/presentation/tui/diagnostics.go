package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/aretw0/tessera/pkg/domain"
)

// PrintDiagnostics writes one colored line per diagnostic, errors first.
func PrintDiagnostics(w io.Writer, errs, warnings []domain.Diagnostic) {
	out := termenv.NewOutput(w)
	for _, d := range errs {
		printDiagnostic(out, d, out.Color("#ef4444"), "✗")
	}
	for _, d := range warnings {
		printDiagnostic(out, d, out.Color("#f59e0b"), "!")
	}
}

func printDiagnostic(out *termenv.Output, d domain.Diagnostic, color termenv.Color, mark string) {
	head := out.String(fmt.Sprintf("%s %s", mark, d.Kind)).Foreground(color).Bold()
	fmt.Fprintf(out, "%s %s\n", head, d.Message)
	if d.Expected != "" || d.Found != "" {
		fmt.Fprintf(out, "    expected %s, found %s\n", d.Expected, d.Found)
	}
	if d.Suggestion != "" {
		fmt.Fprintf(out, "    %s %s\n", out.String("hint:").Faint(), d.Suggestion)
	}
}

// PrintValid writes the success line for a validated graph.
func PrintValid(w io.Writer, vg *domain.ValidatedGraph) {
	out := termenv.NewOutput(w)
	check := out.String("✓ valid").Foreground(out.Color("#22c55e")).Bold()
	fmt.Fprintf(out, "%s %d steps\n", check, len(vg.Order))
	for _, id := range vg.Order {
		fmt.Fprintf(out, "    %-16s %s -> %s\n", id, vg.Inputs[id], vg.Outputs[id])
	}
}
