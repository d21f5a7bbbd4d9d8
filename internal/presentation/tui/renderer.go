package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/search"
)

// NewRenderer returns a function that renders markdown using glamour.
// Output that is not a terminal gets the markdown back unchanged.
func NewRenderer(out *os.File) func(string) (string, error) {
	if !IsTerminal(out) {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width(out)),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func width(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		return min(w-4, 120)
	}
	return 80
}

// DescribeBlock renders a manifest as markdown.
func DescribeBlock(m domain.BlockManifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s/%s `%s`\n\n", m.Namespace, m.Name, m.Version)
	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Description)
	}
	fmt.Fprintf(&b, "```\n%s\n```\n\n", m.Signature)

	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| State | %s |\n", m.State)
	if m.Category != "" {
		fmt.Fprintf(&b, "| Category | %s |\n", m.Category)
	}
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, "| Tags | %s |\n", strings.Join(m.Tags, ", "))
	}
	fmt.Fprintf(&b, "| Tests | %d (%.0f%% passing) |\n", m.Metrics.TestCount, m.Metrics.TestPassRate*100)
	fmt.Fprintf(&b, "| Usage | %d |\n", m.Metrics.UsageCount)
	fmt.Fprintf(&b, "| Dependents | %d |\n", m.Metrics.DependentCount)
	if m.Metrics.LatencyMillis > 0 {
		fmt.Fprintf(&b, "| Latency | %.1f ms |\n", m.Metrics.LatencyMillis)
	}
	if !m.Metrics.LastUpdated.IsZero() {
		fmt.Fprintf(&b, "| Updated | %s |\n", m.Metrics.LastUpdated.Format("2006-01-02"))
	}

	if len(m.Depends) > 0 {
		b.WriteString("\n## Depends on\n\n")
		for _, d := range m.Depends {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	if len(m.Similar) > 0 {
		b.WriteString("\n## Similar\n\n")
		for _, s := range m.Similar {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

// DescribeHits renders search results as a markdown table.
func DescribeHits(hits []search.Hit) string {
	if len(hits) == 0 {
		return "_No matching blocks._\n"
	}
	var b strings.Builder
	b.WriteString("| # | Block | Signature | Score |\n|---|---|---|---|\n")
	for i, h := range hits {
		name := fmt.Sprintf("%s/%s@%s", h.Block.Namespace, h.Block.Name, h.Block.Version)
		if h.Deprecated {
			name += " _(deprecated)_"
		}
		fmt.Fprintf(&b, "| %d | %s | `%s` | %.3f |\n", i+1, name, h.Block.Signature, h.Score)
	}
	return b.String()
}
