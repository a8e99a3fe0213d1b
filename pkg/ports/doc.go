/*
Package ports defines the driven ports (interfaces) of the Canopy pipeline.
These interfaces decouple the pipeline core from external implementations, allowing
it to work with various session backends, catalog sources, and evaluator transports.

# Key Interfaces

  - SessionStore: Persists and loads the per-user Session aggregate.
  - DistributedLocker: Coordinates concurrent access to a session across replicas.
  - CatalogSource: Provides the full, unfiltered candidate catalog.
  - Evaluator / EvaluatorResolver: Narrow a candidate set for one stage parameter.
*/
package ports
