// Package dag builds and validates the stage dependency graph of a
// pipeline: explicit depends_on edges, implicit edges inferred from
// stage.<name> references in argument expressions, and cycle detection.
package dag
