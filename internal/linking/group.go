package linking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/idlink/internal/identity"
)

// maxResolveHops bounds how many mergedInto pointers ResolveLoginTarget
// follows.
const maxResolveHops = 32

// MemberSummary describes one record of a group.
type MemberSummary struct {
	ID          string                 `json:"id"`
	Email       string                 `json:"email,omitempty"`
	Phone       string                 `json:"phone,omitempty"`
	Name        string                 `json:"name"`
	AuthMethods []string               `json:"authMethods"`
	Avatar      string                 `json:"avatar,omitempty"`
	IsMaster    bool                   `json:"isMaster"`
	IsActive    bool                   `json:"isActive"`
	Status      identity.AccountStatus `json:"accountStatus"`
	MergedInto  string                 `json:"mergedInto,omitempty"`
	LastSignIn  *time.Time             `json:"lastSignIn,omitempty"`
}

// Summarize builds the member view of a record.
func Summarize(rec identity.Record) MemberSummary {
	return MemberSummary{
		ID:          rec.ID,
		Email:       rec.BestEmail(),
		Phone:       rec.BestPhone(),
		Name:        rec.Name,
		AuthMethods: rec.LinkedProviders(),
		Avatar:      rec.Avatar,
		IsMaster:    rec.IsMaster,
		IsActive:    rec.IsActive(),
		Status:      rec.Status,
		MergedInto:  rec.MergedInto,
		LastSignIn:  rec.LastSignIn,
	}
}

// GetGroupMembers returns every record in the group, merged members
// included, master first and the rest by id.
func (s *Service) GetGroupMembers(ctx context.Context, groupID string) ([]MemberSummary, error) {
	if groupID == "" {
		return nil, newInvalidRequest("", "group id is required")
	}
	recs, err := s.store.ListGroup(ctx, groupID)
	if err != nil {
		return nil, classify("list group members", err)
	}

	out := make([]MemberSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summarize(rec))
	}
	slices.SortStableFunc(out, func(a, b MemberSummary) int {
		if a.IsMaster != b.IsMaster {
			if a.IsMaster {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ResolveLoginTarget follows mergedInto pointers from id to the record
// that should authenticate. A record that is not merged resolves to itself.
func (s *Service) ResolveLoginTarget(ctx context.Context, id string) (identity.Record, error) {
	if id == "" {
		return identity.Record{}, newInvalidRequest("", "record id is required")
	}

	visited := make(map[string]bool)
	cur := id
	for range maxResolveHops {
		rec, err := s.store.Get(ctx, cur)
		if err != nil {
			lerr := classify("resolve login target", err)
			lerr.RecordID = cur
			return identity.Record{}, lerr
		}
		if rec.Status != identity.StatusMerged {
			return rec, nil
		}
		visited[cur] = true
		if visited[rec.MergedInto] {
			return identity.Record{}, &LinkError{
				Code:     ErrCodeCycleDetected,
				Message:  fmt.Sprintf("mergedInto chain loops back to %s", rec.MergedInto),
				RecordID: id,
			}
		}
		cur = rec.MergedInto
	}
	return identity.Record{}, &LinkError{
		Code:     ErrCodeCycleDetected,
		Message:  fmt.Sprintf("mergedInto chain exceeds %d hops", maxResolveHops),
		RecordID: id,
	}
}

// History returns the merge log of a group, oldest first.
func (s *Service) History(ctx context.Context, groupID string) ([]identity.MergeEntry, error) {
	if groupID == "" {
		return nil, newInvalidRequest("", "group id is required")
	}
	entries, err := s.store.MergeLog(ctx, groupID)
	if err != nil {
		return nil, classify("read merge history", err)
	}
	return entries, nil
}
