package domain

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/version"
)

// BlockID is the immutable identity of a registered block.
type BlockID struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
}

// Key returns "namespace/name", the identity without its version.
func (id BlockID) Key() string { return id.Namespace + "/" + id.Name }

func (id BlockID) String() string { return id.Key() + "@" + id.Version }

// ParseID parses "namespace/name@version".
func ParseID(s string) (BlockID, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return BlockID{}, err
	}
	raw := ref.Range.String()
	if !version.Valid(raw) {
		return BlockID{}, fmt.Errorf("%w: %q needs an exact version", ErrInvalidRef, s)
	}
	return BlockID{Namespace: ref.Namespace, Name: ref.Name, Version: raw}, nil
}

// BlockRef is a non-owning lookup key: a block name plus a version range.
type BlockRef struct {
	Namespace string
	Name      string
	Range     version.Range
}

// Key returns "namespace/name".
func (r BlockRef) Key() string { return r.Namespace + "/" + r.Name }

func (r BlockRef) String() string {
	if r.Range.IsAny() {
		return r.Key()
	}
	return r.Key() + "@" + r.Range.String()
}

// ParseRef parses "namespace/name" or "namespace/name@range".
func ParseRef(s string) (BlockRef, error) {
	s = strings.TrimSpace(s)
	path, rng, _ := strings.Cut(s, "@")
	ns, name, ok := strings.Cut(path, "/")
	if !ok || !validSegment(ns) || !validSegment(name) {
		return BlockRef{}, fmt.Errorf("%w: %q (want namespace/name[@range])", ErrInvalidRef, s)
	}
	r, err := version.ParseRange(rng)
	if err != nil {
		return BlockRef{}, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	return BlockRef{Namespace: ns, Name: name, Range: r}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (r BlockRef) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *BlockRef) UnmarshalText(data []byte) error {
	parsed, err := ParseRef(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

// Signature is the pure Input -> Output contract of a block.
type Signature struct {
	Input  schema.Type `json:"input" yaml:"input"`
	Output schema.Type `json:"output" yaml:"output"`
}

func (s Signature) String() string { return s.Input.String() + " -> " + s.Output.String() }

// Equal reports whether both sides are structurally identical.
func (s Signature) Equal(other Signature) bool {
	return s.Input.Equal(other.Input) && s.Output.Equal(other.Output)
}

// BlockManifest describes a registered block. Identity and signature are
// immutable once registered; only Metrics and State change.
type BlockManifest struct {
	Namespace   string         `json:"namespace" yaml:"namespace"`
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Signature   Signature      `json:"signature" yaml:"signature"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	Metrics     Metrics        `json:"metrics" yaml:"metrics"`
	Depends     []BlockRef     `json:"depends,omitempty" yaml:"depends,omitempty"`
	Similar     []string       `json:"similar,omitempty" yaml:"similar,omitempty"`
	State       LifecycleState `json:"lifecycle_state" yaml:"lifecycle_state"`
}

// ID returns the block identity.
func (m BlockManifest) ID() BlockID {
	return BlockID{Namespace: m.Namespace, Name: m.Name, Version: m.Version}
}

// HasTag reports whether the block carries tag (case-insensitive).
func (m BlockManifest) HasTag(tag string) bool {
	return slices.ContainsFunc(m.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

// Clone returns a deep copy.
func (m BlockManifest) Clone() BlockManifest {
	out := m
	out.Tags = slices.Clone(m.Tags)
	out.Depends = slices.Clone(m.Depends)
	out.Similar = slices.Clone(m.Similar)
	return out
}

// Validate checks a typed manifest and lists every problem at once.
func (m BlockManifest) Validate() error {
	var problems []string
	if !validSegment(m.Namespace) {
		problems = append(problems, fmt.Sprintf("namespace %q is missing or invalid", m.Namespace))
	}
	if !validSegment(m.Name) {
		problems = append(problems, fmt.Sprintf("name %q is missing or invalid", m.Name))
	}
	if !version.Valid(m.Version) {
		problems = append(problems, fmt.Sprintf("version %q is not a semantic version", m.Version))
	}
	if m.Signature.Input.IsZero() {
		problems = append(problems, "signature.input is missing")
	}
	if m.Signature.Output.IsZero() {
		problems = append(problems, "signature.output is missing")
	}
	if m.State != "" && !m.State.Valid() {
		problems = append(problems, fmt.Sprintf("unknown lifecycle_state %q", m.State))
	}
	problems = append(problems, m.Metrics.problems()...)
	if len(problems) == 0 {
		return nil
	}
	return &ManifestError{ID: m.ID().String(), Kind: ErrInvalidManifest, Problems: problems}
}
