package linking

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/roach88/idlink/internal/identity"
)

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Success      bool   `json:"success"`
	GroupID      string `json:"groupId,omitempty"`
	MergedUserID string `json:"mergedUserId,omitempty"`
	MergedCount  int    `json:"mergedAccounts"`
	// AlreadyMerged lists secondaries that were inert before this call and
	// were skipped.
	AlreadyMerged []string  `json:"alreadyMerged,omitempty"`
	Error         string    `json:"error,omitempty"`
	Code          ErrorCode `json:"code,omitempty"`
}

// MergeOption configures a single merge.
type MergeOption func(*mergeConfig)

type mergeConfig struct {
	createGroup bool
	attempts    uint
}

// WithoutGroupCreation fails the merge with INVALID_REQUEST instead of
// minting a group id when no member belongs to a group yet.
func WithoutGroupCreation() MergeOption {
	return func(c *mergeConfig) {
		c.createGroup = false
	}
}

// withSingleAttempt disables the re-plan after a lost race.
func withSingleAttempt() MergeOption {
	return func(c *mergeConfig) {
		c.attempts = 1
	}
}

// Merge absorbs secondaryIDs into primaryID.
//
// The primary receives the union of every member's emails, phones and
// providers, keeps its own primary identifiers and scalar fields where set,
// and becomes the group master. Each secondary becomes inert, pointing at
// the primary. Secondaries that are already merged are skipped, so
// repeating a merge is a no-op success with MergedCount 0.
//
// All writes are applied in one store transaction. If a concurrent write
// changes any member between read and write, the merge re-reads and
// re-plans once; a conflict that persists is reported as CONFLICT.
//
// Expected failures return both a result with Success false and a non-nil
// *LinkError carrying the same code.
func (s *Service) Merge(ctx context.Context, primaryID string, secondaryIDs []string, opts ...MergeOption) (MergeResult, error) {
	cfg := mergeConfig{createGroup: true, attempts: 2}
	for _, opt := range opts {
		opt(&cfg)
	}

	secondaries, lerr := mergeIDs(primaryID, secondaryIDs)
	if lerr != nil {
		return failedMerge(lerr), lerr
	}

	var lastErr error
	res, err := retry.DoWithData(
		func() (MergeResult, error) {
			r, err := s.mergeOnce(ctx, primaryID, secondaries, cfg)
			lastErr = err
			return r, err
		},
		retry.Context(ctx),
		retry.Attempts(cfg.attempts),
		retry.Delay(s.retryDelay),
		retry.MaxJitter(max(s.retryDelay/2, time.Millisecond)),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, identity.ErrConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("merge lost a race, re-planning",
				"primary", primaryID,
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		lerr := classify("merge", lastErr)
		if lerr.RecordID == "" {
			lerr.RecordID = primaryID
		}
		s.logger.Warn("merge failed",
			"primary", primaryID,
			"secondaries", len(secondaries),
			"code", lerr.Code,
			"error", lastErr)
		return failedMerge(lerr), lerr
	}
	return res, nil
}

func failedMerge(err *LinkError) MergeResult {
	return MergeResult{
		Success: false,
		Error:   err.Error(),
		Code:    err.Code,
	}
}

// mergeIDs validates the id arguments and drops duplicate secondaries,
// preserving input order.
func mergeIDs(primaryID string, secondaryIDs []string) ([]string, *LinkError) {
	if primaryID == "" {
		return nil, newInvalidRequest("", "primary id is required")
	}
	if len(secondaryIDs) == 0 {
		return nil, newInvalidRequest(primaryID, "at least one secondary id is required")
	}
	out := make([]string, 0, len(secondaryIDs))
	for _, id := range secondaryIDs {
		switch {
		case id == "":
			return nil, newInvalidRequest(primaryID, "secondary id is empty")
		case id == primaryID:
			return nil, newInvalidRequest(id, "cannot merge a record into itself")
		case slices.Contains(out, id):
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// mergeOnce reads every member, plans the merge and applies it. Store
// conflicts are returned unwrapped from classification so the caller can
// decide to re-plan.
func (s *Service) mergeOnce(ctx context.Context, primaryID string, secondaryIDs []string, cfg mergeConfig) (MergeResult, error) {
	recs, err := s.store.GetMany(ctx, append([]string{primaryID}, secondaryIDs...))
	if err != nil {
		return MergeResult{}, classify("load merge members", err)
	}
	byID := make(map[string]identity.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	primary, ok := byID[primaryID]
	if !ok {
		return MergeResult{}, NewNotFoundError(primaryID)
	}
	if primary.Status != identity.StatusActive {
		return MergeResult{}, newInvalidRequest(primaryID, "primary record is %s", primary.Status)
	}

	var pending []identity.Record
	var already []string
	for _, id := range secondaryIDs {
		rec, ok := byID[id]
		if !ok {
			return MergeResult{}, NewNotFoundError(id)
		}
		switch rec.Status {
		case identity.StatusMerged:
			already = append(already, id)
		case identity.StatusActive:
			pending = append(pending, rec)
		default:
			return MergeResult{}, newInvalidRequest(id, "secondary record is %s", rec.Status)
		}
	}

	if len(pending) == 0 {
		s.logger.Debug("merge is a no-op, all secondaries already merged",
			"primary", primaryID,
			"group", primary.GroupID)
		return MergeResult{
			Success:       true,
			GroupID:       primary.GroupID,
			MergedUserID:  primaryID,
			AlreadyMerged: already,
			Code:          ErrCodeAlreadyMerged,
		}, nil
	}

	groupID := targetGroup(primary, pending)
	if groupID == "" {
		if !cfg.createGroup {
			return MergeResult{}, newInvalidRequest(primaryID, "no member belongs to a group and group creation is disabled")
		}
		groupID = s.groupIDs.Generate()
	}

	plan := buildPlan(groupID, primary, pending, s.now())
	if err := s.store.ApplyMerge(ctx, plan); err != nil {
		return MergeResult{}, err
	}

	s.logger.Info("merged identities",
		"primary", primaryID,
		"group", groupID,
		"merged", len(pending),
		"skipped", len(already))

	return MergeResult{
		Success:       true,
		GroupID:       groupID,
		MergedUserID:  primaryID,
		MergedCount:   len(pending),
		AlreadyMerged: already,
	}, nil
}

// targetGroup returns the primary's group, else the first secondary's in
// input order, else "".
func targetGroup(primary identity.Record, secondaries []identity.Record) string {
	if primary.GroupID != "" {
		return primary.GroupID
	}
	for _, sec := range secondaries {
		if sec.GroupID != "" {
			return sec.GroupID
		}
	}
	return ""
}

// buildPlan computes the post-merge state of every member.
//
// Scalars resolve primary first, then the first non-empty secondary in
// input order. An OAuth-sourced secondary avatar beats an uploaded one when
// the primary has none.
func buildPlan(groupID string, primary identity.Record, secondaries []identity.Record, now time.Time) identity.MergePlan {
	master := primary

	emails := [][]string{{primary.PrimaryEmail}, primary.LinkedEmails}
	phones := [][]string{{primary.PrimaryPhone}, primary.LinkedPhones}
	providers := [][]string{primary.Providers}
	for _, sec := range secondaries {
		emails = append(emails, []string{sec.PrimaryEmail}, sec.LinkedEmails)
		phones = append(phones, []string{sec.PrimaryPhone}, sec.LinkedPhones)
		providers = append(providers, sec.Providers)

		if master.PrimaryEmail == "" {
			master.PrimaryEmail = sec.PrimaryEmail
		}
		if master.PrimaryPhone == "" {
			master.PrimaryPhone = sec.PrimaryPhone
		}
		if master.PasswordHash == "" {
			master.PasswordHash = sec.PasswordHash
		}
		if master.Name == "" {
			master.Name = sec.Name
		}
		master.EmailVerified = master.EmailVerified || sec.EmailVerified
		master.PhoneVerified = master.PhoneVerified || sec.PhoneVerified
		master.LastSignIn = latest(master.LastSignIn, sec.LastSignIn)
	}
	master.LinkedEmails = identity.Union(emails...)
	master.LinkedPhones = identity.Union(phones...)
	master.Providers = identity.Union(providers...)

	if master.Avatar == "" {
		if src, ok := avatarSource(secondaries); ok {
			master.Avatar = src.Avatar
			master.AvatarSource = src.AvatarSource
		}
	}

	master.GroupID = groupID
	master.IsMaster = true
	master.Status = identity.StatusActive
	master.MergedInto = ""
	master.MergedAt = nil

	mergedAt := now
	out := make([]identity.Record, len(secondaries))
	for i, sec := range secondaries {
		sec.Status = identity.StatusMerged
		sec.MergedInto = primary.ID
		sec.IsMaster = false
		sec.MergedAt = &mergedAt
		sec.GroupID = groupID
		out[i] = sec
	}

	return identity.MergePlan{
		GroupID:     groupID,
		Primary:     master,
		Secondaries: out,
		MergedAt:    now,
	}
}

func avatarSource(secondaries []identity.Record) (identity.Record, bool) {
	for _, sec := range secondaries {
		if sec.HasOAuthAvatar() {
			return sec, true
		}
	}
	for _, sec := range secondaries {
		if sec.Avatar != "" {
			return sec, true
		}
	}
	return identity.Record{}, false
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}
