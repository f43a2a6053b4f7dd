package identity

import "strings"

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims a phone number and drops common separators.
// A leading '+' is kept; every other non-digit character is removed.
//
//	NormalizePhone(" +1 (555) 010-2000 ") // "+15550102000"
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(phone))
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Union concatenates the given sets, dropping empty strings and duplicates
// while preserving first occurrence.
func Union(sets ...[]string) []string {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for _, s := range sets {
		for _, v := range s {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
