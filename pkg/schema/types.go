package schema

import (
	"strings"
)

// Kind enumerates the closed set of type expression shapes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNone
	KindBool
	KindNum
	KindText
	KindBytes
	KindAny
	KindList
	KindMap
	KindOption
	KindResult
	KindNamed
	KindVar
)

var kindNames = map[Kind]string{
	KindNone:   "None",
	KindBool:   "Bool",
	KindNum:    "Num",
	KindText:   "Text",
	KindBytes:  "Bytes",
	KindAny:    "Any",
	KindList:   "List",
	KindMap:    "Map",
	KindOption: "Option",
	KindResult: "Result",
}

// arity of each constructor that takes parameters.
var constructorArity = map[string]Kind{
	"List":   KindList,
	"Map":    KindMap,
	"Option": KindOption,
	"Result": KindResult,
}

func (k Kind) String() string {
	switch k {
	case KindNamed:
		return "Named"
	case KindVar:
		return "Var"
	case KindInvalid:
		return "Invalid"
	}
	return kindNames[k]
}

// Arity returns the number of type parameters a kind carries.
func (k Kind) Arity() int {
	switch k {
	case KindList, KindOption:
		return 1
	case KindMap, KindResult:
		return 2
	default:
		return 0
	}
}

// Type is an immutable type expression.
// The zero value is invalid; build types with the factory functions or Parse.
type Type struct {
	kind   Kind
	name   string // named types and variables
	scope  string // variables only; set by Instantiate
	params []Type
}

// --- Factory Functions ---

// None is the unit type.
func None() Type { return Type{kind: KindNone} }

// Bool is the boolean primitive.
func Bool() Type { return Type{kind: KindBool} }

// Num is the numeric primitive.
func Num() Type { return Type{kind: KindNum} }

// Text is the string primitive.
func Text() Type { return Type{kind: KindText} }

// Bytes is the binary primitive.
func Bytes() Type { return Type{kind: KindBytes} }

// Any unifies with every type.
func Any() Type { return Type{kind: KindAny} }

// List creates List<elem>.
func List(elem Type) Type { return Type{kind: KindList, params: []Type{elem}} }

// Map creates Map<key, value>.
func Map(key, value Type) Type { return Type{kind: KindMap, params: []Type{key, value}} }

// Option creates Option<elem>.
func Option(elem Type) Type { return Type{kind: KindOption, params: []Type{elem}} }

// Result creates Result<ok, err>.
func Result(ok, err Type) Type { return Type{kind: KindResult, params: []Type{ok, err}} }

// Named creates an opaque named type such as ValidationError.
func Named(name string) Type { return Type{kind: KindNamed, name: name} }

// Var creates a type variable. Variables are generic parameters of a single
// block signature and are bound during unification.
func Var(name string) Type { return Type{kind: KindVar, name: name} }

// Kind returns the shape of the type.
func (t Type) Kind() Kind { return t.kind }

// IsZero reports whether t is the invalid zero value.
func (t Type) IsZero() bool { return t.kind == KindInvalid }

// Name returns the type's head name: the primitive or constructor name,
// the named type, or the variable name.
func (t Type) Name() string {
	switch t.kind {
	case KindNamed, KindVar:
		return t.name
	}
	return t.kind.String()
}

// Params returns a copy of the type parameters.
func (t Type) Params() []Type {
	if len(t.params) == 0 {
		return nil
	}
	out := make([]Type, len(t.params))
	copy(out, t.params)
	return out
}

// Param returns the i-th type parameter, or the zero Type.
func (t Type) Param(i int) Type {
	if i < 0 || i >= len(t.params) {
		return Type{}
	}
	return t.params[i]
}

// String renders the canonical text form, e.g. "Result<Bool,ValidationError>".
func (t Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) write(b *strings.Builder) {
	if t.kind == KindInvalid {
		b.WriteString("<invalid>")
		return
	}
	b.WriteString(t.Name())
	if len(t.params) == 0 {
		return
	}
	b.WriteByte('<')
	for i, p := range t.params {
		if i > 0 {
			b.WriteByte(',')
		}
		p.write(b)
	}
	b.WriteByte('>')
}

// Equal reports structural equality. Variables are equal when both name and
// instantiation scope match.
func (t Type) Equal(other Type) bool {
	if t.kind != other.kind || t.name != other.name || t.scope != other.scope {
		return false
	}
	if len(t.params) != len(other.params) {
		return false
	}
	for i := range t.params {
		if !t.params[i].Equal(other.params[i]) {
			return false
		}
	}
	return true
}

// Unwrapped returns T for Result<T,E> and Option<T>.
func (t Type) Unwrapped() (Type, bool) {
	switch t.kind {
	case KindResult, KindOption:
		return t.params[0], true
	}
	return Type{}, false
}

// Vars returns the distinct variable names appearing in t, in first-seen order.
func (t Type) Vars() []string {
	var out []string
	seen := make(map[string]bool)
	t.walk(func(v Type) {
		if v.kind == KindVar && !seen[v.varKey()] {
			seen[v.varKey()] = true
			out = append(out, v.name)
		}
	})
	return out
}

// HasVars reports whether t mentions any type variable.
func (t Type) HasVars() bool {
	found := false
	t.walk(func(v Type) {
		if v.kind == KindVar {
			found = true
		}
	})
	return found
}

// Instantiate returns a copy of t whose variables are scoped to scope, so that
// two uses of the same generic signature bind independently.
func (t Type) Instantiate(scope string) Type {
	switch t.kind {
	case KindVar:
		return Type{kind: KindVar, name: t.name, scope: scope}
	}
	if len(t.params) == 0 {
		return t
	}
	params := make([]Type, len(t.params))
	for i, p := range t.params {
		params[i] = p.Instantiate(scope)
	}
	return Type{kind: t.kind, name: t.name, params: params}
}

func (t Type) walk(fn func(Type)) {
	fn(t)
	for _, p := range t.params {
		p.walk(fn)
	}
}

func (t Type) varKey() string {
	if t.scope == "" {
		return t.name
	}
	return t.name + "'" + t.scope
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if t.kind == KindInvalid {
		return []byte{}, nil
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		*t = Type{}
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
