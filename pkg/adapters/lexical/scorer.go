// Package lexical provides an offline ports.SemanticScorer that matches
// query text against block names, tags and descriptions.
package lexical

import (
	"context"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/aretw0/tessera/pkg/domain"
)

// Term weights. A block matching on every term saturates at 1.
const (
	NameWeight        = 0.4
	FullNameWeight    = 0.2
	TagWeight         = 0.15
	DescriptionWeight = 0.1
	// FuzzyWeight applies when the query is an in-order subsequence of the
	// full name but no substring of it, e.g. "emlvalid".
	FuzzyWeight = 0.1
)

// Scorer scores blocks by keyword overlap.
type Scorer struct{}

// New returns a Scorer.
func New() *Scorer { return &Scorer{} }

// Score implements ports.SemanticScorer. Blocks without any match are
// absent from the result.
func (s *Scorer) Score(ctx context.Context, query string, candidates []domain.BlockManifest) (map[domain.BlockID]float64, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make(map[domain.BlockID]float64)
	if q == "" {
		return out, nil
	}
	words := strings.Fields(q)

	fullNames := make([]string, len(candidates))
	for i, c := range candidates {
		fullNames[i] = strings.ToLower(c.ID().Key())
	}
	fuzzyHit := make(map[int]bool)
	for _, m := range fuzzy.Find(strings.ReplaceAll(q, " ", ""), fullNames) {
		fuzzyHit[m.Index] = true
	}

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := 0.0
		lexical := false
		if strings.Contains(strings.ToLower(c.Name), q) {
			score += NameWeight
			lexical = true
		}
		if strings.Contains(fullNames[i], q) {
			score += FullNameWeight
			lexical = true
		}
		for _, tag := range c.Tags {
			t := strings.ToLower(tag)
			if containsWord(words, t) || strings.Contains(t, q) {
				score += TagWeight
			}
		}
		desc := strings.ToLower(c.Description)
		for _, w := range words {
			if strings.Contains(desc, w) {
				score += DescriptionWeight
			}
		}
		if !lexical && fuzzyHit[i] {
			score += FuzzyWeight
		}
		if score > 0 {
			out[c.ID()] = min(score, 1)
		}
	}
	return out, nil
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
