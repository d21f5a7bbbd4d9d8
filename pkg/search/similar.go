package search

import (
	"sort"
	"strings"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/version"
)

// DuplicateThreshold is the minimum CheckDuplicate score reported.
const DuplicateThreshold = 0.5

var compareVersions = version.Compare

// FindSimilar returns blocks sharing at least one tag with target and an
// identical signature, excluding every version of target itself.
func (e *Engine) FindSimilar(target domain.BlockManifest, opts ...QueryOption) []domain.BlockManifest {
	q := Query{}
	for _, opt := range opts {
		opt(&q)
	}
	var out []domain.BlockManifest
	for _, b := range e.candidates(q) {
		if b.ID().Key() == target.ID().Key() {
			continue
		}
		if !sharesTag(b.Tags, target.Tags) || !b.Signature.Equal(target.Signature) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.TestPassRate > out[j].Metrics.TestPassRate
	})
	return out
}

// Duplicate is an existing block that a candidate may reinvent.
type Duplicate struct {
	Block domain.BlockManifest `json:"block"`
	Score float64              `json:"score"`
}

// CheckDuplicate compares a prospective block against every registered one,
// in any state, and returns those scoring at least DuplicateThreshold:
// 0.4 for an identical signature, 0.3 when either name contains the other,
// and up to 0.2 for tag overlap.
func (e *Engine) CheckDuplicate(candidate domain.BlockManifest) []Duplicate {
	name := strings.ToLower(candidate.Name)
	var out []Duplicate
	for _, b := range e.index.List(registry.Filter{}) {
		if b.ID() == candidate.ID() {
			continue
		}
		var score float64
		if b.Signature.Equal(candidate.Signature) {
			score += 0.4
		}
		other := strings.ToLower(b.Name)
		if name != "" && (strings.Contains(other, name) || strings.Contains(name, other)) {
			score += 0.3
		}
		if common := countShared(candidate.Tags, b.Tags); common > 0 {
			score += 0.2 * float64(common) / float64(len(candidate.Tags))
		}
		if score >= DuplicateThreshold {
			out = append(out, Duplicate{Block: b, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Block.ID().String() < out[j].Block.ID().String()
	})
	return out
}

func sharesTag(a, b []string) bool { return countShared(a, b) > 0 }

func countShared(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			n++
			delete(set, t)
		}
	}
	return n
}
