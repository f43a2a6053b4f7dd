package linking

import "context"

// Suggestion is the set of candidates worth showing to the user for
// manual confirmation.
type Suggestion struct {
	ShouldSuggest bool        `json:"shouldSuggest"`
	Candidates    []Candidate `json:"candidates"`
	Confidence    int         `json:"confidence"`
}

// Suggest returns the candidates at or above the suggestion floor.
// Confidence is the highest among them, 0 when there are none.
func (s *Service) Suggest(ctx context.Context, q Query) (Suggestion, error) {
	cands, err := s.FindCandidates(ctx, q)
	if err != nil {
		return Suggestion{}, err
	}

	kept := make([]Candidate, 0, len(cands))
	best := 0
	for _, c := range cands {
		if c.Confidence < s.policy.SuggestFloor {
			continue
		}
		kept = append(kept, c)
		best = max(best, c.Confidence)
	}
	return Suggestion{
		ShouldSuggest: len(kept) > 0,
		Candidates:    kept,
		Confidence:    best,
	}, nil
}
