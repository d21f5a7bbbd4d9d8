package domain

import "fmt"

// LifecycleState is the maturity stage of a block.
type LifecycleState string

const (
	StateProposed   LifecycleState = "proposed"
	StateTesting    LifecycleState = "testing"
	StateStable     LifecycleState = "stable"
	StateDeprecated LifecycleState = "deprecated"
	StateArchived   LifecycleState = "archived"
)

// LifecycleStates lists every state in lifecycle order.
var LifecycleStates = []LifecycleState{StateProposed, StateTesting, StateStable, StateDeprecated, StateArchived}

// Valid reports whether s is a known state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateProposed, StateTesting, StateStable, StateDeprecated, StateArchived:
		return true
	}
	return false
}

// ParseLifecycleState converts text to a LifecycleState. Empty text yields
// StateProposed.
func ParseLifecycleState(s string) (LifecycleState, error) {
	if s == "" {
		return StateProposed, nil
	}
	st := LifecycleState(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown lifecycle state %q", s)
	}
	return st, nil
}
