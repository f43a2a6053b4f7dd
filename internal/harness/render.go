package harness

import (
	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/linking"
)

// The render helpers build canonical-JSON-safe maps: strings, bools, ints
// and []any only, with empty optional fields omitted.

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func anyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func errorMap(err error) map[string]any {
	return map[string]any{"error_code": string(linking.CodeOf(err))}
}

func candidateMap(c linking.Candidate) map[string]any {
	m := map[string]any{
		"id":            c.ID,
		"confidence":    c.Confidence,
		"match_reasons": anyList(c.MatchReasons),
		"auth_methods":  anyList(c.AuthMethods),
	}
	putString(m, "email", c.Email)
	putString(m, "phone", c.Phone)
	putString(m, "name", c.Name)
	putString(m, "group_id", c.GroupID)
	return m
}

func autoLinkMap(r linking.AutoLinkResult) map[string]any {
	m := map[string]any{
		"linked":     r.Linked,
		"confidence": r.Confidence,
		"message":    r.Message,
	}
	putString(m, "group_id", r.GroupID)
	putString(m, "candidate_id", r.CandidateID)
	putString(m, "code", string(r.Code))
	return m
}

func mergeMap(r linking.MergeResult) map[string]any {
	m := map[string]any{
		"success":      r.Success,
		"merged_count": r.MergedCount,
	}
	putString(m, "group_id", r.GroupID)
	putString(m, "merged_user_id", r.MergedUserID)
	putString(m, "code", string(r.Code))
	if len(r.AlreadyMerged) > 0 {
		m["already_merged"] = anyList(r.AlreadyMerged)
	}
	return m
}

func memberMap(s linking.MemberSummary) map[string]any {
	m := map[string]any{
		"id":           s.ID,
		"is_master":    s.IsMaster,
		"is_active":    s.IsActive,
		"status":       string(s.Status),
		"auth_methods": anyList(s.AuthMethods),
	}
	putString(m, "merged_into", s.MergedInto)
	return m
}

// recordMap renders a stored record for final_state assertions.
func recordMap(r identity.Record) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"primary_email":  r.PrimaryEmail,
		"primary_phone":  r.PrimaryPhone,
		"name":           r.Name,
		"linked_emails":  anyList(r.LinkedEmails),
		"linked_phones":  anyList(r.LinkedPhones),
		"providers":      anyList(r.Providers),
		"auth_methods":   anyList(r.LinkedProviders()),
		"password_set":   r.PasswordHash != "",
		"avatar":         r.Avatar,
		"email_verified": r.EmailVerified,
		"phone_verified": r.PhoneVerified,
		"group_id":       r.GroupID,
		"is_master":      r.IsMaster,
		"status":         string(r.Status),
		"merged_into":    r.MergedInto,
	}
}

// argsMap renders the non-zero step arguments for the trace.
func argsMap(a StepArgs) map[string]any {
	m := map[string]any{}
	putString(m, "id", a.ID)
	putString(m, "email", a.Email)
	putString(m, "phone", a.Phone)
	putString(m, "name", a.Name)
	putString(m, "exclude_id", a.ExcludeID)
	putString(m, "primary", a.Primary)
	putString(m, "group", a.Group)
	if a.Threshold != 0 {
		m["threshold"] = a.Threshold
	}
	if len(a.Secondaries) > 0 {
		m["secondaries"] = anyList(a.Secondaries)
	}
	if len(a.Providers) > 0 {
		m["providers"] = anyList(a.Providers)
	}
	if a.Password != "" {
		m["password_set"] = true
	}
	if a.NoGroupCreation {
		m["no_group_creation"] = true
	}
	if a.EmailVerified {
		m["email_verified"] = true
	}
	if a.PhoneVerified {
		m["phone_verified"] = true
	}
	return m
}
