/*
Package dsl provides a Go DSL for programmatically constructing composition graphs.

It lets callers describe wired blocks with a fluent builder instead of hand-writing
YAML or JSON requests. This is particularly useful for tests, for agents that assemble
graphs step by step, and for leveraging IDE autocompletion/type-checking.

Example usage:

	package main

	import (
		"github.com/aretw0/tessera/pkg/dsl"
	)

	func main() {
		b := dsl.New().Input("Text")

		b.Add("check").
			Use("stdlib/email.validate@^1.0.0").
			Go("unwrap")

		b.Add("unwrap").
			Use("core/unwrap").
			Terminal()

		graph, err := b.Build()
		if err != nil {
			panic(err)
		}
		// ... pass graph to registry.Validate(ctx, graph)
	}
*/
package dsl
