package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New().Input("Text")

	b.Add("check").
		Use("stdlib/email.validate").
		Entry().
		Go("unwrap")

	b.Add("unwrap").
		Use("core/unwrap").
		Terminal()

	g, err := b.Build()
	require.NoError(t, err)

	require.Len(t, g.Steps, 2)
	assert.Equal(t, "check", g.Steps[0].ID, "declaration order is kept")
	assert.Equal(t, "stdlib/email.validate", g.Steps[0].Block)
	assert.Equal(t, []domain.Edge{{From: "check", To: "unwrap"}}, g.Edges)
	assert.Equal(t, []string{"check"}, g.EntryPoints)
	assert.Equal(t, []string{"unwrap"}, g.Terminals)
	assert.True(t, g.Input.Equal(schema.Text()))
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New()
	first := b.Add("a").Use("core/pipe")
	again := b.Add("a")

	assert.Same(t, first, again)
	assert.Len(t, b.MustBuild().Steps, 1)
}

func TestBuilder_Then(t *testing.T) {
	b := New()
	b.Add("read").Use("io/file.read").
		Then("split").Use("stdlib/text.split").
		Then("join").Use("stdlib/text.join").Terminal()

	g := b.MustBuild()
	assert.Equal(t, []domain.Edge{
		{From: "read", To: "split"},
		{From: "split", To: "join"},
	}, g.Edges)
	assert.Equal(t, []string{"join"}, g.Terminals)
}

func TestBuilder_Chain(t *testing.T) {
	g := New().Chain("io/file.read", "stdlib/csv.parse").MustBuild()

	require.Len(t, g.Steps, 2)
	assert.Equal(t, "s1", g.Steps[0].ID)
	assert.Equal(t, "s2", g.Steps[1].ID)
	assert.Equal(t, []domain.Edge{{From: "s1", To: "s2"}}, g.Edges)
	assert.Equal(t, []string{"s2"}, g.Terminals)
}

func TestBuilder_Config(t *testing.T) {
	g := New().Add("fetch").Use("io/http.get").Config("url", "https://example.com").builder.MustBuild()

	assert.True(t, g.Steps[0].HasConfig())
	assert.Equal(t, "https://example.com", g.Steps[0].Config["url"])
}

func TestBuilder_Flags(t *testing.T) {
	g := New().MultiEntry().MultiOutput().Chain("core/pipe").MustBuild()

	assert.True(t, g.MultiEntry)
	assert.True(t, g.MultiOutput)
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("missing block", func(t *testing.T) {
		b := New()
		b.Add("a")
		b.Add("b")

		_, err := b.Build()
		require.ErrorIs(t, err, ErrIncompleteStep)
		assert.Len(t, schema.Errors(err), 2, "every incomplete step is reported")
	})

	t.Run("bad input type", func(t *testing.T) {
		_, err := New().Input("List<").Chain("core/pipe").Build()
		assert.ErrorIs(t, err, schema.ErrTypeSyntax)
	})

	t.Run("must build panics", func(t *testing.T) {
		b := New()
		b.Add("a")
		assert.Panics(t, func() { b.MustBuild() })
	})
}
