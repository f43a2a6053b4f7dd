// Package lookup is a small, backend-neutral description of identity store
// reads.
//
// The linking engine states what it needs (records holding an email, active
// records whose name contains a blocking key, members of a group) and the
// store compiles that into parameterized SQL. Keeping the reads declarative
// means every query shape is enumerable and validated in one place, and
// every compiled query carries a deterministic ORDER BY.
//
// Predicate is a sealed interface: only this package implements it, so the
// compiler can switch over it exhaustively.
package lookup
