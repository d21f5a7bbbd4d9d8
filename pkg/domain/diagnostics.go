package domain

import (
	"fmt"
	"strings"
)

// DiagnosticKind classifies a wiring problem.
type DiagnosticKind string

const (
	DiagUnknownBlock      DiagnosticKind = "UnknownBlock"
	DiagCycleDetected     DiagnosticKind = "CycleDetected"
	DiagTypeMismatch      DiagnosticKind = "TypeMismatch"
	DiagUnreachable       DiagnosticKind = "Unreachable"
	DiagUnhandledResult   DiagnosticKind = "UnhandledResult"
	DiagDuplicateStep     DiagnosticKind = "DuplicateStep"
	DiagUnknownStep       DiagnosticKind = "UnknownStep"
	DiagMultipleTerminals DiagnosticKind = "MultipleTerminals"
	DiagDeprecatedBlock   DiagnosticKind = "DeprecatedBlock"
)

// Severity of a diagnostic. Warnings never fail validation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single machine-readable wiring finding.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	Severity   Severity       `json:"severity"`
	Step       string         `json:"step,omitempty"`
	Edge       *Edge          `json:"edge,omitempty"`
	Expected   string         `json:"expected,omitempty"`
	Found      string         `json:"found,omitempty"`
	Cycle      []string       `json:"cycle,omitempty"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", d.Kind, d.Message)
	if d.Suggestion != "" {
		fmt.Fprintf(&b, " (hint: %s)", d.Suggestion)
	}
	return b.String()
}

// WiringErrors carries every diagnostic produced by one validation.
// It is returned only when at least one error-severity diagnostic exists.
type WiringErrors struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

func (e *WiringErrors) Error() string {
	if len(e.Errors) == 1 {
		return "invalid wiring: " + e.Errors[0].String()
	}
	lines := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		lines[i] = d.String()
	}
	return fmt.Sprintf("invalid wiring, found %d errors:\n- %s", len(e.Errors), strings.Join(lines, "\n- "))
}

func (e *WiringErrors) Unwrap() error { return ErrInvalidWiring }

// Of returns the error diagnostics of the given kind.
func (e *WiringErrors) Of(kind DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range e.Errors {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Has reports whether any error or warning of the given kind is present.
func (e *WiringErrors) Has(kind DiagnosticKind) bool {
	for _, d := range e.Errors {
		if d.Kind == kind {
			return true
		}
	}
	for _, d := range e.Warnings {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
