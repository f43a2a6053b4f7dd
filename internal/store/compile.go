package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/lookup"
)

// recordColumns is the column list scanRecord expects, in order.
const recordColumns = "id, primary_email, primary_phone, name, password_hash, avatar, avatar_source, " +
	"email_verified, phone_verified, group_id, is_master, account_status, merged_into, " +
	"merged_at, created_at, last_sign_in, version"

// compile converts a lookup to parameterized SQL over the identities table.
//
// Every query ends in an ORDER BY with id as the final tiebreaker, so
// results are identical across calls on an unchanged store. Values are
// always bound as parameters, never interpolated.
func compile(sel lookup.Select) (string, []any, error) {
	if err := lookup.Validate(sel); err != nil {
		return "", nil, fmt.Errorf("invalid lookup: %w", err)
	}

	var b strings.Builder
	var params []any

	b.WriteString("SELECT ")
	b.WriteString(recordColumns)
	b.WriteString(" FROM identities")

	if sel.Filter != nil {
		where, whereParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = append(params, whereParams...)
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderClause(sel.Order))

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, sel.Limit)
	}

	return b.String(), params, nil
}

func orderClause(o lookup.Order) string {
	if o == lookup.OrderMasterFirst {
		return "is_master DESC, id COLLATE BINARY ASC"
	}
	return "id COLLATE BINARY ASC"
}

func compilePredicate(p lookup.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case lookup.Active:
		return "account_status = ?", []any{string(identity.StatusActive)}, nil
	case lookup.EmailIs:
		return "(primary_email = ? OR id IN (SELECT identity_id FROM identity_emails WHERE email = ?))",
			[]any{pred.Email, pred.Email}, nil
	case lookup.PhoneIs:
		return "(primary_phone = ? OR id IN (SELECT identity_id FROM identity_phones WHERE phone = ?))",
			[]any{pred.Phone, pred.Phone}, nil
	case lookup.NameContainsAny:
		// Keys are fully case folded; (?i) alone is simple folding and
		// misses names whose folded form changes length.
		return "name_fold(name) REGEXP ?", []any{namePattern(pred.Keys)}, nil
	case lookup.IDIn:
		return "id IN (" + placeholders(len(pred.IDs)) + ")", stringArgs(pred.IDs), nil
	case lookup.IDAfter:
		return "id COLLATE BINARY > ?", []any{pred.ID}, nil
	case lookup.GroupIs:
		return "group_id = ?", []any{pred.GroupID}, nil
	case lookup.And:
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for i, sub := range pred.Predicates {
			sqlPart, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, fmt.Errorf("and[%d]: %w", i, err)
			}
			parts = append(parts, sqlPart)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// namePattern builds a case-insensitive alternation of literal keys.
func namePattern(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return "(?i)(?:" + strings.Join(quoted, "|") + ")"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
