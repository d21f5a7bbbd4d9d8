package schema

// Subst records type variable bindings accumulated during unification.
// A Subst is not safe for concurrent use.
type Subst struct {
	bindings map[string]Type
}

// NewSubst returns an empty substitution.
func NewSubst() *Subst {
	return &Subst{bindings: make(map[string]Type)}
}

// Len returns the number of bound variables.
func (s *Subst) Len() int { return len(s.bindings) }

// Lookup returns the binding of an unscoped variable name.
func (s *Subst) Lookup(name string) (Type, bool) {
	t, ok := s.bindings[name]
	return t, ok
}

func (s *Subst) clone() *Subst {
	c := &Subst{bindings: make(map[string]Type, len(s.bindings))}
	for k, v := range s.bindings {
		c.bindings[k] = v
	}
	return c
}

// Apply replaces bound variables in t with their bindings, recursively.
// Unbound variables are left in place.
func (s *Subst) Apply(t Type) Type {
	if s == nil {
		return t
	}
	switch t.kind {
	case KindVar:
		if bound, ok := s.bindings[t.varKey()]; ok {
			return s.Apply(bound)
		}
		return t
	}
	if len(t.params) == 0 {
		return t
	}
	params := make([]Type, len(t.params))
	for i, p := range t.params {
		params[i] = s.Apply(p)
	}
	return Type{kind: t.kind, name: t.name, params: params}
}

// Unify reports whether a and b are compatible.
// Compatibility is structural: Any matches anything, parameters are invariant,
// and type variables bind consistently within the call.
func Unify(a, b Type) bool {
	return UnifyWith(NewSubst(), a, b)
}

// UnifyWith unifies a and b, extending s with any new variable bindings.
// On failure s is left unchanged.
func UnifyWith(s *Subst, a, b Type) bool {
	trial := s.clone()
	if !unify(trial, a, b) {
		return false
	}
	s.bindings = trial.bindings
	return true
}

func (s *Subst) resolve(t Type) Type {
	for t.kind == KindVar {
		bound, ok := s.bindings[t.varKey()]
		if !ok {
			return t
		}
		t = bound
	}
	return t
}

func unify(s *Subst, a, b Type) bool {
	a, b = s.resolve(a), s.resolve(b)
	if a.kind == KindInvalid || b.kind == KindInvalid {
		return false
	}
	if a.kind == KindAny || b.kind == KindAny {
		return true
	}
	if a.kind == KindVar && b.kind == KindVar && a.varKey() == b.varKey() {
		return true
	}
	if a.kind == KindVar {
		return s.bind(a, b)
	}
	if b.kind == KindVar {
		return s.bind(b, a)
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindNamed && a.name != b.name {
		return false
	}
	if len(a.params) != len(b.params) {
		return false
	}
	for i := range a.params {
		if !unify(s, a.params[i], b.params[i]) {
			return false
		}
	}
	return true
}

func (s *Subst) bind(v, t Type) bool {
	if s.occurs(v.varKey(), t) {
		return false
	}
	s.bindings[v.varKey()] = t
	return true
}

func (s *Subst) occurs(key string, t Type) bool {
	t = s.resolve(t)
	if t.kind == KindVar {
		return t.varKey() == key
	}
	for _, p := range t.params {
		if s.occurs(key, p) {
			return true
		}
	}
	return false
}
