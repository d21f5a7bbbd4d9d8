/*
Package tessera is a registry of typed, versioned blocks with a type-directed wiring validator.

A block is a pure Input -> Output signature plus metadata: tags, quality metrics and a
lifecycle state. Callers search blocks by free text or by signature, assemble them into
directed composition graphs, and verify that a graph is well-typed, acyclic and complete
before anything executes it.

# Concept

Tessera never runs blocks. It owns the catalog (BlockStore), the type system (package
schema), ranking, lifecycle gates and the validator, while your application ("Host")
owns execution and IO. This Hexagonal Architecture allows Tessera to be embedded in any
interface: CLI, HTTP Server, or AI Agent infrastructure (MCP).

# Key Features

  - Structural Types: Text, Result<Bool,ValidationError>, List<T>... with Any and per-block type variables.
  - Whole-Graph Diagnostics: every unknown block, cycle, mismatch and unreachable step in one pass.
  - Ranked Search: semantic and type-signature queries scored by named ranking profiles.
  - Quality Gates: blocks only become stable once their metrics earn it.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/tessera"
		"github.com/aretw0/tessera/pkg/dsl"
	)

	func main() {
		ctx := context.Background()

		// Seed the registry with the standard blocks
		reg, err := tessera.New(ctx, tessera.WithStdlib())
		if err != nil {
			log.Fatal(err)
		}
		defer reg.Close(ctx)

		b := dsl.New()
		b.Add("check").Use("stdlib/email.validate").Go("unwrap")
		b.Add("unwrap").Use("core/unwrap")

		vg, err := reg.Validate(ctx, b.MustBuild())
		if err != nil {
			// err is a *domain.WiringErrors listing every diagnostic
			log.Fatal(err)
		}
		log.Println("Output:", vg.Outputs["unwrap"])
	}
*/
package tessera
