package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"Text", Text()},
		{"None", None()},
		{"Bytes", Bytes()},
		{"Any", Any()},
		{"List<Num>", List(Num())},
		{"Map<Text, List<Bool>>", Map(Text(), List(Bool()))},
		{"Option<HttpResponse>", Option(Named("HttpResponse"))},
		{" Result< Bool ,ValidationError > ", Result(Bool(), Named("ValidationError"))},
		{"Result<T,E>", Result(Var("T"), Var("E"))},
		{"geo.Point", Type{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.want.IsZero() {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParse_Named(t *testing.T) {
	got, err := Parse("Geo.Point")
	require.NoError(t, err)
	assert.Equal(t, KindNamed, got.Kind())
	assert.Equal(t, "Geo.Point", got.Name())
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		reason string
	}{
		{"empty", "", "empty"},
		{"lowercase primitive", "text", "unknown primitive"},
		{"unknown constructor", "Set<Text>", "unknown type constructor"},
		{"missing close", "Result<Bool, Text", "unbalanced"},
		{"extra close", "List<Text>>", "unbalanced"},
		{"wrong arity", "Map<Text>", "expects 2"},
		{"bare constructor", "List", "expects 1"},
		{"primitive with params", "Text<Bool>", "no type parameters"},
		{"empty params", "List<>", "expected type name"},
		{"trailing junk", "Text Bool", "after type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTypeSyntax))

			var synErr *SyntaxError
			require.True(t, errors.As(err, &synErr))
			assert.Contains(t, synErr.Reason, tt.reason)
		})
	}
}

func TestParseAll_ReportsEveryFailure(t *testing.T) {
	_, err := ParseAll("Text", "strng", "List<")
	require.Error(t, err)
	assert.Len(t, Errors(err), 2)
	assert.True(t, errors.Is(err, ErrTypeSyntax))
}

func TestString_Canonical(t *testing.T) {
	typ := MustParse("Result< Map<Text,Num> , Option<E> >")
	assert.Equal(t, "Result<Map<Text,Num>,Option<E>>", typ.String())

	again, err := Parse(typ.String())
	require.NoError(t, err)
	assert.True(t, again.Equal(typ))
}

func TestVarsAndInstantiate(t *testing.T) {
	typ := MustParse("Result<T, Map<K, T>>")
	assert.Equal(t, []string{"T", "K"}, typ.Vars())
	assert.True(t, typ.HasVars())
	assert.False(t, Text().HasVars())

	a := typ.Instantiate("a")
	b := typ.Instantiate("b")
	assert.False(t, a.Equal(b))
	assert.Equal(t, typ.String(), a.String())
}

func TestUnwrapped(t *testing.T) {
	inner, ok := MustParse("Result<Bool,Err>").Unwrapped()
	require.True(t, ok)
	assert.True(t, inner.Equal(Bool()))

	inner, ok = Option(Text()).Unwrapped()
	require.True(t, ok)
	assert.True(t, inner.Equal(Text()))

	_, ok = List(Text()).Unwrapped()
	assert.False(t, ok)
}

func TestType_TextEncoding(t *testing.T) {
	type sig struct {
		Input  Type `json:"input" yaml:"input"`
		Output Type `json:"output" yaml:"output"`
	}

	t.Run("JSON", func(t *testing.T) {
		var s sig
		require.NoError(t, json.Unmarshal([]byte(`{"input":"Text","output":"Result<Bool, ValidationError>"}`), &s))
		assert.Equal(t, "Result<Bool,ValidationError>", s.Output.String())

		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `{"input":"Text","output":"Result<Bool,ValidationError>"}`, string(data))
	})

	t.Run("YAML", func(t *testing.T) {
		var s sig
		require.NoError(t, yaml.Unmarshal([]byte("input: List<Text>\noutput: Num\n"), &s))
		assert.True(t, s.Input.Equal(List(Text())))
	})

	t.Run("Invalid", func(t *testing.T) {
		var s sig
		err := json.Unmarshal([]byte(`{"input":"string","output":"Num"}`), &s)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTypeSyntax))
	})
}
