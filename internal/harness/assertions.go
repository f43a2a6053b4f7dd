package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/store"
)

// AssertionContext provides the state assertions inspect.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Step, event.Op, event.Args)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertFinalState:
		return assertFinalState(actx, a)
	case AssertUniquePrimaryEmails:
		return assertUniquePrimaryEmails(actx)
	case AssertMergeLog:
		return assertMergeLog(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks that an operation was executed.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Op == a.Op {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s", a.Op),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that operations first appear in the given order.
// Intervening operations are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if slices.Contains(a.Ops, event.Op) && positions[event.Op] == 0 {
			positions[event.Op] = event.Step
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (step %d) should be before %s (step %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that an operation ran exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a stored record against expected fields using
// subset semantics.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	rec, err := actx.Store.Get(actx.Ctx, a.ID)
	if errors.Is(err, identity.ErrNotFound) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s", a.ID),
			Actual:   "record not found",
		}
	}
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	if diff := subsetMismatch("", a.Expect, recordMap(rec)); diff != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s matches %v", a.ID, a.Expect),
			Actual:   diff,
		}
	}
	return nil
}

// assertUniquePrimaryEmails checks that no two active records share a
// primary email.
func assertUniquePrimaryEmails(actx *AssertionContext) error {
	rows, err := actx.Store.DB().QueryContext(actx.Ctx, `
		SELECT primary_email, COUNT(*) FROM identities
		WHERE account_status = 'active' AND primary_email != ''
		GROUP BY primary_email HAVING COUNT(*) > 1
		ORDER BY primary_email COLLATE BINARY
	`)
	if err != nil {
		return fmt.Errorf("unique_primary_emails: %w", err)
	}
	defer rows.Close()

	var dups []string
	for rows.Next() {
		var email string
		var n int
		if err := rows.Scan(&email, &n); err != nil {
			return fmt.Errorf("unique_primary_emails: %w", err)
		}
		dups = append(dups, fmt.Sprintf("%s (%d records)", email, n))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("unique_primary_emails: %w", err)
	}

	if len(dups) > 0 {
		return &AssertionError{
			Type:     AssertUniquePrimaryEmails,
			Expected: "each primary email held by at most one active record",
			Actual:   "shared: " + strings.Join(dups, ", "),
		}
	}
	return nil
}

// assertMergeLog checks the number of merge-log entries of a group.
func assertMergeLog(actx *AssertionContext, a Assertion) error {
	entries, err := actx.Store.MergeLog(actx.Ctx, a.Group)
	if err != nil {
		return fmt.Errorf("merge_log: %w", err)
	}
	if len(entries) != a.Count {
		return &AssertionError{
			Type:     AssertMergeLog,
			Expected: fmt.Sprintf("%d merge-log entries in %s", a.Count, a.Group),
			Actual:   fmt.Sprintf("%d entries", len(entries)),
		}
	}
	return nil
}

// subsetMismatch describes the first difference between expected and
// actual, or returns "" when expected is a subset of actual. Maps match by
// subset; lists must match element for element.
func subsetMismatch(path string, expected, actual any) string {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return fmt.Sprintf("%s: expected object, got %T", displayPath(path), actual)
		}
		keys := make([]string, 0, len(exp))
		for k := range exp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sub := path + "." + k
			v, ok := act[k]
			if !ok {
				return fmt.Sprintf("%s: missing", displayPath(sub))
			}
			if diff := subsetMismatch(sub, exp[k], v); diff != "" {
				return diff
			}
		}
		return ""
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return fmt.Sprintf("%s: expected list, got %T", displayPath(path), actual)
		}
		if len(exp) != len(act) {
			return fmt.Sprintf("%s: expected %d elements, got %d: %v", displayPath(path), len(exp), len(act), act)
		}
		for i := range exp {
			if diff := subsetMismatch(fmt.Sprintf("%s[%d]", path, i), exp[i], act[i]); diff != "" {
				return diff
			}
		}
		return ""
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Sprintf("%s: expected %v (%T), got %v (%T)", displayPath(path), expected, expected, actual, actual)
		}
		return ""
	}
}

func displayPath(path string) string {
	if path == "" {
		return "result"
	}
	return strings.TrimPrefix(path, ".")
}
