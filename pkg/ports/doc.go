/*
Package ports defines the driven ports (interfaces) of the block registry.

These interfaces decouple the registry core from external implementations,
allowing it to work with various storage backends, catalog sources and
semantic scorers.

# Key Interfaces

  - ManifestStore: persists block manifests (memory, Redis).
  - DistributedLocker: serializes writes to one block identity across replicas.
  - CatalogLoader: reads manifests from an external catalog (Loam, embedded seed).
  - SemanticScorer: scores blocks against a free-text query.
*/
package ports
