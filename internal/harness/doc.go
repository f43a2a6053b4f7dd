// Package harness runs linking scenarios as executable contract tests.
//
// A scenario seeds identity records, runs a flow of linking operations
// against a fresh in-memory store, checks each step's result against an
// expect clause, and evaluates assertions over the trace and final state.
//
// # Scenario Format
//
//	name: exact_email_autolink
//	description: "Registration with a known email links automatically"
//	policy: strict.cue          # optional, relative to the scenario file
//	records:
//	  - id: u1
//	    email: a@x.com
//	    name: Alice Adams
//	    email_verified: true
//	flow:
//	  - op: register
//	    args: { id: new, email: a@x.com }
//	    expect:
//	      auto_link: { linked: true, group_id: group-1 }
//	assertions:
//	  - type: final_state
//	    id: new
//	    expect: { status: merged, merged_into: u1 }
//
// # Operations
//
//   - find_candidates, suggest: email, phone, name, exclude_id
//   - autolink: id, email, phone, name, threshold
//   - merge: primary, secondaries, no_group_creation
//   - group, history: group
//   - resolve: id
//   - register: id, email, phone, name, password, providers, email_verified, phone_verified
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: a stored record matches expected fields (subset match)
//   - unique_primary_emails: no two active records share a primary email
//   - merge_log: a group's merge log has exactly N entries
//
// # Deterministic Testing
//
// Every scenario runs with a fixed clock (advanced one second per step)
// and sequential group and record ids ("group-1", "rec-1", ...), so traces
// are byte-identical across runs and can be compared to golden files.
package harness
