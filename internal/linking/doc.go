// Package linking implements account linking and identity resolution.
//
// Given identifying attributes of a registration or sign-in (email, phone,
// name), the service finds existing records that plausibly belong to the
// same person, ranks them by confidence, and merges confirmed matches into
// one identity group.
//
// COMPONENTS:
//
// Candidate Finder (FindCandidates):
// Queries the store by email, phone and fuzzy name, deduplicates by record
// id, accumulates every match reason, and ranks by confidence descending
// with id ascending as the tiebreaker.
//
// Suggestion Engine (Suggest, AutoLinkIfConfident):
// Filters candidates to the suggestion floor. Auto-linking additionally
// requires the top candidate to match on an exact primary email or primary
// phone; name similarity alone never auto-links, whatever its score.
// Auto-linking never returns an error: failures degrade to "not linked".
//
// Group Merge Engine (Merge):
// Unions identifiers, providers and verification flags onto the primary,
// marks secondaries merged, and applies everything as one compare-and-swap
// transaction. Re-merging is a no-op success.
//
// Group Accessor (GetGroupMembers, ResolveLoginTarget, History):
// Lists every group member including merged ones, and follows mergedInto
// pointers to the record that should authenticate.
//
// The service holds no mutable state of its own. Concurrency control is
// delegated to the store's conditional updates, so any number of requests
// may share one Service.
package linking
