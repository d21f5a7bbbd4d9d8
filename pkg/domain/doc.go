/*
Package domain contains the core domain models of the block registry.

It defines blocks, their identities and references, quality metrics,
lifecycle states, composition graphs and wiring diagnostics. This package is
kept pure and free of I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - BlockManifest: a typed, versioned block (signature plus metadata).
  - BlockRef: a non-owning lookup key, "namespace/name@range".
  - Metrics: quality signals; TestPassRate is derived from an integer Tally.
  - CompositionGraph: caller-owned steps and edges to be validated.
  - Diagnostic / WiringErrors: every problem a validation found.
*/
package domain
