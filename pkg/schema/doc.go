// Package schema implements the block type system: a closed set of type
// expressions, their textual syntax, and structural unification.
//
// Type expressions are built from primitives (None, Bool, Num, Text, Bytes),
// the wildcard Any, the constructors List<T>, Map<K,V>, Option<T> and
// Result<T,E>, opaque named types such as ValidationError, and single-letter
// type variables that make a signature generic:
//
//	t, err := schema.Parse("Result<Bool, ValidationError>")
//	if err != nil {
//	    // err wraps schema.ErrTypeSyntax
//	}
//	fmt.Println(t) // Result<Bool,ValidationError>
//
// Two types are compatible when they unify:
//
//	schema.Unify(schema.Text(), schema.Any())                          // true
//	schema.Unify(schema.List(schema.Text()), schema.List(schema.Num())) // false
//
// Variables bind consistently within a substitution, so Result<T,T> does not
// unify with Result<Bool,Text>. Use Instantiate to give each use of a generic
// signature its own variables, and UnifyWith to thread bindings across
// several checks.
//
// The package has no dependencies beyond the Go standard library.
package schema
