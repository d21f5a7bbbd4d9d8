package manifest_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	raw := map[string]any{
		"namespace":   "stdlib",
		"name":        "email.validate",
		"version":     "1.0.0",
		"description": "Validate email address format",
		"signature": map[string]any{
			"input":  "Text",
			"output": "Result<Bool, ValidationError>",
		},
		"tags":     []any{"email", "validation"},
		"category": "validation",
		"metrics": map[string]any{
			"test_count":     "50",
			"test_pass_rate": 0.98,
			"usage_count":    1000,
			"last_updated":   "2026-01-15T10:00:00Z",
		},
		"depends":         []any{"core/transform@^1.0.0", map[string]any{"ref": "core/unwrap", "range": "1.x"}},
		"lifecycle_state": "stable",
		"unknown_field":   "ignored",
	}

	m, err := manifest.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockID{Namespace: "stdlib", Name: "email.validate", Version: "1.0.0"}, m.ID())
	assert.Equal(t, "Result<Bool,ValidationError>", m.Signature.Output.String())
	assert.Equal(t, 50, m.Metrics.TestCount)
	assert.Equal(t, 50, m.Metrics.Tally.SeedRuns)
	assert.Equal(t, int64(1000), m.Metrics.UsageCount)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), m.Metrics.LastUpdated.UTC())
	assert.Equal(t, domain.StateStable, m.State)
	require.Len(t, m.Depends, 2)
	assert.Equal(t, "core/transform@^1.0.0", m.Depends[0].String())
	assert.Equal(t, "core/unwrap@1.x", m.Depends[1].String())
}

func TestDecode_DefaultsToProposed(t *testing.T) {
	m, err := manifest.Decode(map[string]any{
		"namespace": "core", "name": "pipe", "version": "1.0.0",
		"signature": map[string]any{"input": "Any", "output": "Any"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateProposed, m.State)
}

func TestDecode_MissingFieldsListedTogether(t *testing.T) {
	_, err := manifest.Decode(map[string]any{
		"name":      "broken",
		"signature": map[string]any{"input": "Text"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)

	var me *domain.ManifestError
	require.True(t, errors.As(err, &me))
	assert.ElementsMatch(t, []string{
		"namespace is required",
		"version is required",
		"signature.output is required",
	}, me.Problems)
}

func TestDecode_InvalidSignature(t *testing.T) {
	_, err := manifest.Decode(map[string]any{
		"namespace": "stdlib", "name": "x", "version": "1.0.0",
		"signature": map[string]any{"input": "string", "output": "Result<Bool"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.ErrorIs(t, err, schema.ErrTypeSyntax)

	var me *domain.ManifestError
	require.True(t, errors.As(err, &me))
	assert.Len(t, me.Problems, 2, "both sides are reported")
}

func TestDecode_InvalidVersion(t *testing.T) {
	_, err := manifest.Decode(map[string]any{
		"namespace": "stdlib", "name": "x", "version": "one",
		"signature": map[string]any{"input": "Text", "output": "Text"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)
}

func TestDecodeDocument(t *testing.T) {
	doc := []byte(`
blocks:
  - namespace: core
    name: unwrap
    version: 1.0.0
    signature:
      input: Result<T, E>
      output: T
  - namespace: core
    name: broken
    version: 1.0.0
    signature:
      input: text
      output: Text
`)
	blocks, err := manifest.DecodeDocument(doc)
	require.Error(t, err)
	require.Len(t, blocks, 1, "valid records are still returned")
	assert.Equal(t, "unwrap", blocks[0].Name)
	assert.Len(t, schema.Errors(err), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	single, err := manifest.DecodeDocument([]byte(`{"namespace":"io","name":"stdout","version":"1.0.0","signature":{"input":"Text","output":"None"}}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "None", single[0].Signature.Output.String())
}

func TestFromManifest_RoundTrip(t *testing.T) {
	m, err := manifest.Decode(map[string]any{
		"namespace": "io", "name": "http.get", "version": "1.2.0",
		"signature": map[string]any{"input": "Text", "output": "Result<HttpResponse,HttpError>"},
		"depends":   []any{"core/pipe"},
	})
	require.NoError(t, err)

	rec := manifest.FromManifest(m)
	back, err := rec.Manifest()
	require.NoError(t, err)
	assert.Equal(t, m.ID(), back.ID())
	assert.True(t, m.Signature.Equal(back.Signature))
	assert.Equal(t, []any{"core/pipe"}, rec.Depends)
}
