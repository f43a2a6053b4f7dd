package linking

import (
	"context"
	"fmt"
)

// AutoLinkResult reports whether a new record was linked automatically.
type AutoLinkResult struct {
	Linked      bool      `json:"linked"`
	GroupID     string    `json:"groupId,omitempty"`
	Message     string    `json:"message"`
	Confidence  int       `json:"confidence"`
	CandidateID string    `json:"candidateId,omitempty"`
	Code        ErrorCode `json:"code,omitempty"`
}

// AutoLinkIfConfident merges newID into its best existing match when that
// match is both confident and exact.
//
// A threshold of 0 or less selects the policy default. The top candidate
// must reach the threshold and must have matched on its primary email or
// primary phone; a name-only or linked-identifier match is reported as
// AMBIGUOUS_MATCH and left for the user to confirm, whatever its score.
//
// A record that is already merged is never re-linked: the result is Linked
// false with code ALREADY_MERGED and the record's own group.
//
// The merge is attempted exactly once. AutoLinkIfConfident never returns an
// error: every failure becomes Linked false with a diagnostic message, so
// the registration or sign-in that triggered it can proceed.
func (s *Service) AutoLinkIfConfident(ctx context.Context, newID string, q Query, threshold int) AutoLinkResult {
	if threshold <= 0 {
		threshold = s.policy.AutoLinkThreshold
	}
	if newID == "" {
		return AutoLinkResult{
			Message: "Automatic linking skipped: record id is required",
			Code:    ErrCodeInvalidRequest,
		}
	}

	q.ExcludeID = newID
	sug, err := s.Suggest(ctx, q)
	if err != nil {
		s.logger.Warn("auto-link candidate search failed", "record", newID, "error", err)
		return AutoLinkResult{
			Message: fmt.Sprintf("Automatic linking skipped: candidate search failed: %v", err),
			Code:    CodeOf(err),
		}
	}
	if !sug.ShouldSuggest || sug.Confidence < threshold {
		return AutoLinkResult{
			Message:    "No existing account matched with enough confidence",
			Confidence: sug.Confidence,
		}
	}

	top := sug.Candidates[0]
	if !top.HasExactIdentifierMatch() {
		s.logger.Info("auto-link needs confirmation",
			"record", newID,
			"candidate", top.ID,
			"confidence", top.Confidence)
		return AutoLinkResult{
			Message:     "Matching account found; linking requires confirmation",
			Confidence:  top.Confidence,
			CandidateID: top.ID,
			Code:        ErrCodeAmbiguousMatch,
		}
	}

	res, err := s.Merge(ctx, top.ID, []string{newID}, withSingleAttempt())
	if err != nil {
		return AutoLinkResult{
			Message:     fmt.Sprintf("Automatic linking failed: %v", err),
			Confidence:  top.Confidence,
			CandidateID: top.ID,
			Code:        CodeOf(err),
		}
	}

	if res.MergedCount == 0 {
		// newID was already inert, possibly in another account's group.
		// Nothing was linked to top; report where the record actually is.
		groupID, into := "", ""
		if rec, err := s.store.Get(ctx, newID); err == nil {
			groupID, into = rec.GroupID, rec.MergedInto
		}
		s.logger.Info("auto-link skipped, record already merged",
			"record", newID,
			"candidate", top.ID,
			"merged_into", into)
		return AutoLinkResult{
			GroupID:     groupID,
			Message:     fmt.Sprintf("Record is already linked to account %s", into),
			Confidence:  top.Confidence,
			CandidateID: top.ID,
			Code:        ErrCodeAlreadyMerged,
		}
	}

	s.logger.Info("auto-linked identity",
		"record", newID,
		"candidate", top.ID,
		"group", res.GroupID,
		"confidence", top.Confidence)
	return AutoLinkResult{
		Linked:      true,
		GroupID:     res.GroupID,
		Message:     fmt.Sprintf("Account automatically linked with existing account (%d%% confidence)", top.Confidence),
		Confidence:  top.Confidence,
		CandidateID: top.ID,
	}
}
