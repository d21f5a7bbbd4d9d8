package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidManifest is returned when a manifest record misses required fields.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrDuplicateIdentity is returned when (namespace, name, version) is already registered.
	ErrDuplicateIdentity = errors.New("duplicate block identity")
	// ErrInvalidSignature is returned when a signature side fails to parse.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrBlockNotFound is returned when no block matches an identity or reference.
	ErrBlockNotFound = errors.New("block not found")
	// ErrUnknownRankingProfile is returned for profile names outside the fixed set.
	ErrUnknownRankingProfile = errors.New("unknown ranking profile")
	// ErrGateNotMet is returned when a promotion's quality gate fails.
	ErrGateNotMet = errors.New("quality gate not met")
	// ErrIllegalTransition is returned for lifecycle edges that do not exist.
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	// ErrInvalidDelta is returned for metric updates that would decrease a counter.
	ErrInvalidDelta = errors.New("invalid metrics delta")
	// ErrInvalidRef is returned for malformed block references.
	ErrInvalidRef = errors.New("invalid block reference")
	// ErrInvalidWiring matches every *WiringErrors.
	ErrInvalidWiring = errors.New("invalid wiring")
)

// ManifestError lists every problem found in a manifest at once.
type ManifestError struct {
	ID       string
	Kind     error   // ErrInvalidManifest or ErrInvalidSignature
	Problems []string
	Causes   []error
}

func (e *ManifestError) Error() string {
	subject := "manifest"
	if e.ID != "" {
		subject = e.ID
	}
	return fmt.Sprintf("%s: %v: %s", subject, e.Kind, strings.Join(e.Problems, "; "))
}

func (e *ManifestError) Unwrap() []error {
	return append([]error{e.Kind}, e.Causes...)
}

// GateError reports every unmet promotion condition.
type GateError struct {
	ID      BlockID
	Missing []string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.ID, ErrGateNotMet, strings.Join(e.Missing, ", "))
}

func (e *GateError) Unwrap() error { return ErrGateNotMet }

// TransitionError reports a lifecycle edge that is not allowed.
type TransitionError struct {
	ID   BlockID
	From LifecycleState
	To   LifecycleState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %v: %s -> %s", e.ID, ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
