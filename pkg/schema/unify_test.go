package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestUnify(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Text", "Text", true},
		{"Text", "Num", false},
		{"Text", "Any", true},
		{"Any", "Result<Bool,Err>", true},
		{"List<Text>", "List<Any>", true},
		{"List<Text>", "List<Num>", false},
		{"List<Text>", "Option<Text>", false},
		{"Map<Text,Num>", "Map<Text,Num>", true},
		{"Map<Text,Num>", "Map<Num,Text>", false},
		{"Result<Bool,ValidationError>", "Bool", false},
		{"Result<Bool,ValidationError>", "Result<Bool,ParseError>", false},
		{"HttpResponse", "HttpResponse", true},
		{"HttpResponse", "HttpRequest", false},
		{"T", "Text", true},
		{"Result<T,E>", "Result<Bool,ValidationError>", true},
		{"Result<T,T>", "Result<Bool,Text>", false},
		{"Result<T,T>", "Result<Bool,Bool>", true},
		{"List<T>", "T", false},
		{"Map<K,V>", "Map<V,K>", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"~"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Unify(MustParse(tt.a), MustParse(tt.b)))
		})
	}
}

func TestUnifyWith_Bindings(t *testing.T) {
	s := NewSubst()
	require.True(t, UnifyWith(s, MustParse("Result<T,E>"), MustParse("Result<Bool,ValidationError>")))
	assert.Equal(t, 2, s.Len())

	bound, ok := s.Lookup("T")
	require.True(t, ok)
	assert.True(t, bound.Equal(Bool()))
	assert.Equal(t, "Bool", s.Apply(Var("T")).String())

	// A conflicting binding fails and leaves the substitution untouched.
	assert.False(t, UnifyWith(s, Var("T"), Text()))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "Bool", s.Apply(Var("T")).String())
}

func TestUnifyWith_AnyIsNeverInferred(t *testing.T) {
	s := NewSubst()
	require.True(t, UnifyWith(s, Var("T"), Any()))
	_, ok := s.Lookup("T")
	assert.False(t, ok)
}

func TestUnifyWith_ScopedVariables(t *testing.T) {
	s := NewSubst()
	unwrapIn := MustParse("Result<T,E>").Instantiate("first")
	unwrapOut := Var("T").Instantiate("first")
	otherIn := Var("T").Instantiate("second")

	require.True(t, UnifyWith(s, MustParse("Result<Bool,Err>"), unwrapIn))
	assert.Equal(t, "Bool", s.Apply(unwrapOut).String())

	// The same variable name in another scope is still free.
	require.True(t, UnifyWith(s, Text(), otherIn))
	assert.Equal(t, "Text", s.Apply(otherIn).String())
	assert.Equal(t, "Bool", s.Apply(unwrapOut).String())
}

func genType(depth int) *rapid.Generator[Type] {
	leaves := []Type{None(), Bool(), Num(), Text(), Bytes(), Any(), Named("Email"), Named("ValidationError"), Var("T"), Var("E")}
	if depth <= 0 {
		return rapid.SampledFrom(leaves)
	}
	return rapid.Custom(func(t *rapid.T) Type {
		switch rapid.IntRange(0, 4).Draw(t, "shape") {
		case 0:
			return List(genType(depth-1).Draw(t, "elem"))
		case 1:
			return Map(genType(depth-1).Draw(t, "key"), genType(depth-1).Draw(t, "value"))
		case 2:
			return Option(genType(depth-1).Draw(t, "elem"))
		case 3:
			return Result(genType(depth-1).Draw(t, "ok"), genType(depth-1).Draw(t, "err"))
		default:
			return rapid.SampledFrom(leaves).Draw(t, "leaf")
		}
	})
}

func TestUnify_Properties(t *testing.T) {
	t.Run("Reflexive", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			a := genType(3).Draw(t, "a")
			if !Unify(a, a) {
				t.Fatalf("%s does not unify with itself", a)
			}
		})
	})

	t.Run("Symmetric", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			a := genType(3).Draw(t, "a")
			b := genType(3).Draw(t, "b")
			if Unify(a, b) != Unify(b, a) {
				t.Fatalf("unify(%s, %s) is not symmetric", a, b)
			}
		})
	})

	t.Run("AnyAbsorbs", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			a := genType(3).Draw(t, "a")
			if !Unify(a, Any()) || !Unify(Any(), a) {
				t.Fatalf("%s does not unify with Any", a)
			}
		})
	})

	t.Run("RoundTrip", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			a := genType(3).Draw(t, "a")
			back, err := Parse(a.String())
			if err != nil {
				t.Fatalf("parse %q: %v", a.String(), err)
			}
			if !back.Equal(a) {
				t.Fatalf("round trip changed %s into %s", a, back)
			}
		})
	})
}
