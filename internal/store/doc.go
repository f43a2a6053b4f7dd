// Package store provides SQLite-backed durable storage for identity records.
//
// Tables:
//   - identities: one row per record, scalar fields and lifecycle state
//   - identity_emails / identity_phones / identity_providers: linked sets
//   - merge_log: one row per absorbed secondary
//
// # Guarantees
//
// Deterministic reads: every query orders by id (COLLATE BINARY) as the
// final tiebreaker, and linked sets are returned in insertion order.
//
// Atomic merges: ApplyMerge runs in one BEGIN IMMEDIATE transaction. Each
// row update is a compare-and-swap on the record version, so a plan built
// from stale reads is rejected with identity.ErrConflict instead of
// overwriting a concurrent merge.
//
// Idempotent writes: Insert and merge-log rows use ON CONFLICT DO NOTHING;
// merge-log ids are content-addressed via identity.MergeEntryID.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout: wait for the write lock (default 5s)
//   - foreign_keys=ON
//   - regexp(): registered on every connection for name lookups
package store
