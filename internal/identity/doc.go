// Package identity defines the identity record schema shared by the store
// and the linking engine.
//
// A Record is one stored credential set (email, phone, OAuth provider
// accounts). Records that belong to the same real person share a GroupID.
// Exactly one active record per group is the master; the rest are merged
// and inert, reachable only through their MergedInto pointer.
//
// Identifiers are normalized on the way in (see NormalizeEmail and
// NormalizePhone) so that every comparison downstream is exact.
//
// Merge-log entries use content-addressed ids computed from RFC 8785
// canonical JSON and SHA-256 with domain separation (see MergeEntryID).
package identity
