package lexical_test

import (
	"context"
	"testing"

	"github.com/aretw0/tessera/pkg/adapters/lexical"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/ports"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.SemanticScorer = (*lexical.Scorer)(nil)

func block(ns, name, desc string, tags ...string) domain.BlockManifest {
	return domain.BlockManifest{
		Namespace:   ns,
		Name:        name,
		Version:     "1.0.0",
		Description: desc,
		Tags:        tags,
		Signature:   domain.Signature{Input: schema.Text(), Output: schema.Text()},
	}
}

func TestScore(t *testing.T) {
	email := block("stdlib", "email.validate", "Validate an email address", "email", "validation")
	url := block("stdlib", "url.validate", "Check that a URL is well formed", "url", "validation")
	trim := block("stdlib", "text.trim", "Remove surrounding whitespace")
	cands := []domain.BlockManifest{email, url, trim}

	scores, err := lexical.New().Score(context.Background(), "email", cands)
	require.NoError(t, err)

	// name + full name + tag + description
	assert.InDelta(t, 0.85, scores[email.ID()], 1e-9)
	assert.NotContains(t, scores, url.ID())
	assert.NotContains(t, scores, trim.ID())

	scores, err = lexical.New().Score(context.Background(), "validation", cands)
	require.NoError(t, err)
	assert.InDelta(t, scores[email.ID()], scores[url.ID()], 1e-9, "shared tag scores the same")
	assert.Greater(t, scores[email.ID()], 0.0)
}

func TestScore_Fuzzy(t *testing.T) {
	email := block("stdlib", "email.validate", "")
	scores, err := lexical.New().Score(context.Background(), "emlvalid", []domain.BlockManifest{email})
	require.NoError(t, err)
	assert.InDelta(t, lexical.FuzzyWeight, scores[email.ID()], 1e-9)
}

func TestScore_Empty(t *testing.T) {
	scores, err := lexical.New().Score(context.Background(), "  ", []domain.BlockManifest{block("a", "b", "")})
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestScore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := lexical.New().Score(ctx, "b", []domain.BlockManifest{block("a", "b", "")})
	assert.ErrorIs(t, err, context.Canceled)
}
