package ports

import (
	"context"

	"github.com/aretw0/tessera/pkg/domain"
)

// SemanticScorer rates how well each candidate block matches a free-text query.
// Scores are in [0, 1]; blocks missing from the result score 0. Embedding
// models, lexical matchers or remote services all fit behind this port.
type SemanticScorer interface {
	Score(ctx context.Context, query string, candidates []domain.BlockManifest) (map[domain.BlockID]float64, error)
}

// ScorerFunc adapts a function to SemanticScorer.
type ScorerFunc func(ctx context.Context, query string, candidates []domain.BlockManifest) (map[domain.BlockID]float64, error)

func (f ScorerFunc) Score(ctx context.Context, query string, candidates []domain.BlockManifest) (map[domain.BlockID]float64, error) {
	return f(ctx, query, candidates)
}
