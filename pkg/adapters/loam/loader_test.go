package loam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/internal/testutils"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
)

func TestLoader_LoadCatalog(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{
		"email.validate.md": `---
namespace: stdlib
version: 1.0.0
signature:
  input: Text
  output: Result<Bool, ValidationError>
tags: [validation, email]
lifecycle_state: stable
metrics:
  test_count: 47
  test_pass_rate: 1.0
  usage_count: 1250
  last_updated: 2026-01-02T03:04:05Z
---
Validates email addresses.`,
		"json.parse.json": `{
  "namespace": "stdlib",
  "name": "json.parse",
  "version": "1.2.0",
  "description": "Parses JSON text.",
  "signature": {"input": "Text", "output": "Result<Json, ParseError>"},
  "depends": ["stdlib/email.validate@^1.0.0"]
}`,
	})

	loader := New(loam.NewTypedRepository[BlockMetadata](repo))
	blocks, err := loader.LoadCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	byName := make(map[string]domain.BlockManifest)
	for _, b := range blocks {
		byName[b.Name] = b
	}

	email := byName["email.validate"]
	assert.Equal(t, "stdlib", email.Namespace, "name is taken from the file name")
	assert.Equal(t, "Validates email addresses.", email.Description, "markdown body becomes the description")
	assert.Equal(t, domain.StateStable, email.State)
	assert.Equal(t, 47, email.Metrics.TestCount)
	assert.Equal(t, int64(1250), email.Metrics.UsageCount)
	assert.True(t, email.Signature.Output.Equal(schema.Result(schema.Bool(), schema.Named("ValidationError"))))
	assert.Equal(t, 2026, email.Metrics.LastUpdated.Year())

	parse := byName["json.parse"]
	assert.Equal(t, "Parses JSON text.", parse.Description)
	assert.Equal(t, domain.StateProposed, parse.State)
	require.Len(t, parse.Depends, 1)
	assert.Equal(t, "stdlib/email.validate", parse.Depends[0].Key())
}

func TestLoader_LoadCatalog_ReportsAllInvalid(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{
		"good.md": `---
namespace: app
version: 1.0.0
signature: {input: Text, output: Text}
---`,
		"bad_type.md": `---
namespace: app
version: 1.0.0
signature: {input: "Result<Text", output: Text}
---`,
		"no_version.md": `---
namespace: app
signature: {input: Text, output: Text}
---`,
	})

	loader := New(loam.NewTypedRepository[BlockMetadata](repo))
	blocks, err := loader.LoadCatalog(context.Background())
	require.Error(t, err)
	require.Len(t, blocks, 1, "valid documents are still returned")
	assert.Equal(t, "good", blocks[0].Name)

	var agg *schema.AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Errors, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.ErrorIs(t, err, domain.ErrInvalidManifest)
}

func TestLoader_LoadCatalog_DetectsDuplicates(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, tmpDir, map[string]string{
		"echo.md": `---
namespace: app
version: 1.0.0
signature: {input: Text, output: Text}
---`,
		"echo_copy.md": `---
namespace: app
name: echo
version: 1.0.0
signature: {input: Text, output: Text}
---`,
	})

	loader := New(loam.NewTypedRepository[BlockMetadata](repo))
	blocks, err := loader.LoadCatalog(context.Background())
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)
	assert.Len(t, blocks, 1)
}

func TestInferIdentity(t *testing.T) {
	tests := []struct {
		docID    string
		meta     BlockMetadata
		wantNS   string
		wantName string
	}{
		{"stdlib/email.validate.md", BlockMetadata{}, "stdlib", "email.validate"},
		{"stdlib/email.validate", BlockMetadata{}, "stdlib", "email.validate"},
		{"echo.yaml", BlockMetadata{Namespace: "app"}, "app", "echo"},
		{"x/file.md", BlockMetadata{Namespace: "ns", Name: "explicit"}, "ns", "explicit"},
	}
	for _, tt := range tests {
		t.Run(tt.docID, func(t *testing.T) {
			got := inferIdentity(tt.docID, tt.meta)
			assert.Equal(t, tt.wantNS, got.Namespace)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestLoader_WatchStopsWithContext(t *testing.T) {
	_, repo := testutils.SetupTestRepo(t)
	loader := New(loam.NewTypedRepository[BlockMetadata](repo))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel was not closed after cancel")
	}
}
