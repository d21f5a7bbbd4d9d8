package schema

import (
	"errors"
	"fmt"
)

// ErrTypeSyntax matches every *SyntaxError via errors.Is.
var ErrTypeSyntax = errors.New("type syntax error")

// SyntaxError describes why a type expression could not be parsed.
type SyntaxError struct {
	Input  string // Expression as given
	Pos    int    // Rune offset of the failure
	Reason string // Human-readable reason
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid type %q at position %d: %s", e.Input, e.Pos, e.Reason)
}

func (e *SyntaxError) Unwrap() error { return ErrTypeSyntax }

// AggregateError represents multiple failures reported together.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Errors returns all errors if err is an AggregateError.
// Otherwise returns nil.
func Errors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
