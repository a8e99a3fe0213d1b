/*
Package domain contains the core domain models of the Canopy filter pipeline.

It defines the stage definitions, the normalized parameters collected at each stage,
the candidate records being narrowed, and the per-user Session aggregate. This package
is kept pure and free of I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Stage: One step of the pipeline (Categorical, Range, or the Terminal display).
  - Parameter: The validated value committed for a stage (option code or closed interval).
  - Candidate: A tree species record still matching every committed criterion.
  - Session: The mutable progression snapshot (stage index, parameters, candidates).
*/
package domain
