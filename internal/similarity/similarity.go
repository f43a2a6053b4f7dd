// Package similarity scores how alike two display names are.
//
// Scores are integers from 0 to 100 derived from Levenshtein distance over
// runes, after Unicode normalization and case folding. The scorer is pure;
// how a score turns into candidate confidence is decided by the policy
// package.
package similarity

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize prepares a name for comparison: NFC, case folded, trimmed, and
// with runs of whitespace collapsed to one space.
func Normalize(name string) string {
	name = norm.NFC.String(name)
	name = folder.String(name)
	return strings.Join(strings.Fields(name), " ")
}

// NameSimilarity returns 100 × (1 − distance / longer length), rounded.
// Identical names score 100; an empty name on either side scores 0.
func NameSimilarity(a, b string) int {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	dist := levenshtein.ComputeDistance(a, b)
	score := 100 * (1 - float64(dist)/float64(longest))
	return max(0, int(math.Round(score)))
}

// blockingKeyLen is the rune length of a blocking key.
const blockingKeyLen = 3

// BlockingKeys returns the keys used to seed a fuzzy store lookup: the first
// three runes of every word of at least two runes, deduplicated. A stored
// name is worth scoring when it contains any key.
//
//	BlockingKeys("Jonathan Smith") // ["jon", "smi"]
func BlockingKeys(name string) []string {
	fields := strings.Fields(Normalize(name))
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		runes := []rune(f)
		if len(runes) < 2 {
			continue
		}
		key := string(runes[:min(len(runes), blockingKeyLen)])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
