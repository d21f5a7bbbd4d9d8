// Package version implements semantic-version precedence and the version
// range syntax used by block references.
//
// Versions are written without the leading "v" ("1.2.3"); validity and
// precedence follow Semantic Versioning 2.0.0 via golang.org/x/mod/semver.
// Ranges are parsed and checked by github.com/Masterminds/semver/v3:
//
//	"", "*", "latest"       any version
//	"1.2.3", "=1.2.3"        exact
//	">=1.0.0 <2.0.0"         comparators (>, >=, <, <=, =, !=), all must hold
//	"^1.2.3"                 compatible with 1.2.3 (same major, or same minor below 1.0.0)
//	"~1.2.3"                 same minor
//	"1", "1.x", "1.2.*"      partial versions
//	"1.2.0 - 1.4.0"          inclusive hyphen range
//	"^1.0.0 || ^2.0.0"       alternatives
//
// A constrained range only admits a pre-release when one of its comparators
// names a pre-release itself. The any range admits every valid version.
package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	modsemver "golang.org/x/mod/semver"
)

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Valid reports whether v is a full semantic version (major.minor.patch with
// optional pre-release and build metadata).
func Valid(v string) bool {
	c := canonical(v)
	if !modsemver.IsValid(c) {
		return false
	}
	core := strings.SplitN(strings.SplitN(strings.TrimPrefix(c, "v"), "-", 2)[0], "+", 2)[0]
	return strings.Count(core, ".") == 2
}

// Compare returns -1, 0 or +1 by semantic-version precedence.
// Invalid versions sort before valid ones.
func Compare(a, b string) int {
	return modsemver.Compare(canonical(a), canonical(b))
}

// Sort orders versions newest first.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) > 0
	})
}

// Range is a parsed version constraint. The zero value matches every version.
type Range struct {
	raw   string
	exact string
	c     *semver.Constraints
}

// Any matches every version.
var Any = Range{}

// Exact returns a range matching only v.
func Exact(v string) Range {
	return Range{raw: v, exact: canonical(v)}
}

// ParseRange parses a range expression.
func ParseRange(s string) (Range, error) {
	raw := strings.TrimSpace(s)
	if raw == "" || raw == "*" || raw == "latest" {
		return Range{raw: raw}, nil
	}
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return Range{raw: raw, c: c}, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the range as written.
func (r Range) String() string {
	if r.raw == "" && r.IsAny() {
		return "*"
	}
	return r.raw
}

// IsAny reports whether the range places no constraint.
func (r Range) IsAny() bool { return r.c == nil && r.exact == "" }

// Contains reports whether v satisfies the range. Invalid versions never do.
func (r Range) Contains(v string) bool {
	if !Valid(v) {
		return false
	}
	switch {
	case r.exact != "":
		return modsemver.Compare(canonical(v), r.exact) == 0
	case r.c == nil:
		return true
	}
	sv, err := semver.NewVersion(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return r.c.Check(sv)
}

// Max returns the highest version in versions that satisfies r.
func (r Range) Max(versions []string) (string, bool) {
	best := ""
	for _, v := range versions {
		if !r.Contains(v) {
			continue
		}
		if best == "" || Compare(v, best) > 0 {
			best = v
		}
	}
	return best, best != ""
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(data []byte) error {
	parsed, err := ParseRange(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
