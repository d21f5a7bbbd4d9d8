package schema

import (
	"fmt"
	"unicode"
)

var primitives = map[string]Kind{
	"None":  KindNone,
	"Bool":  KindBool,
	"Num":   KindNum,
	"Text":  KindText,
	"Bytes": KindBytes,
	"Any":   KindAny,
}

// Parse converts a textual type expression into a Type.
//
// Grammar:
//
//	type  = ident [ "<" type { "," type } ">" ]
//	ident = letter { letter | digit | "_" | "." }
//
// Primitives are None, Bool, Num, Text, Bytes and Any. List, Map, Option and
// Result take one, two, one and two parameters. A single upper-case letter is
// a type variable; any other capitalised identifier is an opaque named type.
func Parse(text string) (Type, error) {
	p := &parser{src: []rune(text), input: text}
	p.skipSpace()
	if p.eof() {
		return Type{}, p.errorf("empty type expression")
	}
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	p.skipSpace()
	if !p.eof() {
		if p.peek() == '>' {
			return Type{}, p.errorf("unbalanced brackets: unexpected '>'")
		}
		return Type{}, p.errorf("unexpected %q after type", string(p.peek()))
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(text string) Type {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseAll parses every expression and reports all failures at once.
func ParseAll(texts ...string) ([]Type, error) {
	out := make([]Type, len(texts))
	var errs []error
	for i, text := range texts {
		t, err := Parse(text)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[i] = t
	}
	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return out, nil
}

type parser struct {
	src   []rune
	input string
	pos   int
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() rune { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Input: p.input, Pos: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) parseType() (Type, error) {
	p.skipSpace()
	start := p.pos
	ident := p.ident()
	if ident == "" {
		if p.eof() {
			return Type{}, p.errorf("unexpected end of input, expected type name")
		}
		return Type{}, p.errorf("unexpected %q, expected type name", string(p.peek()))
	}

	var params []Type
	p.skipSpace()
	if !p.eof() && p.peek() == '<' {
		p.pos++
		for {
			param, err := p.parseType()
			if err != nil {
				return Type{}, err
			}
			params = append(params, param)
			p.skipSpace()
			if p.eof() {
				return Type{}, p.errorf("unbalanced brackets: missing '>' for %s", ident)
			}
			if p.peek() == ',' {
				p.pos++
				continue
			}
			if p.peek() == '>' {
				p.pos++
				break
			}
			return Type{}, p.errorf("unexpected %q in parameters of %s", string(p.peek()), ident)
		}
	}

	return p.build(ident, params, start)
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if unicode.IsLetter(r) || (p.pos > start && (unicode.IsDigit(r) || r == '_' || r == '.')) {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos])
}

func (p *parser) build(ident string, params []Type, at int) (Type, error) {
	fail := func(format string, args ...any) (Type, error) {
		return Type{}, &SyntaxError{Input: p.input, Pos: at, Reason: fmt.Sprintf(format, args...)}
	}

	if kind, ok := primitives[ident]; ok {
		if len(params) > 0 {
			return fail("%s takes no type parameters", ident)
		}
		return Type{kind: kind}, nil
	}

	if kind, ok := constructorArity[ident]; ok {
		if len(params) != kind.Arity() {
			return fail("%s expects %d type parameter(s), got %d", ident, kind.Arity(), len(params))
		}
		return Type{kind: kind, params: params}, nil
	}

	first := []rune(ident)[0]
	if !unicode.IsUpper(first) {
		return fail("unknown primitive %q", ident)
	}
	if len(params) > 0 {
		return fail("unknown type constructor %q", ident)
	}
	if len([]rune(ident)) == 1 {
		return Var(ident), nil
	}
	return Named(ident), nil
}
