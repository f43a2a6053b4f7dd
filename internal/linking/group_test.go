package linking

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idlink/internal/identity"
)

func TestGetGroupMembers_IncludesMergedMembers(t *testing.T) {
	st := createTestStore(t)
	scenarioPair(t, st)
	mustInsert(t, st, record("A", "a@x.com", "", "Ann"))
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.Merge(ctx, "P", []string{"S", "A"})
	require.NoError(t, err)

	got, err := svc.GetGroupMembers(ctx, "group-1")
	require.NoError(t, err)

	want := []MemberSummary{
		{
			ID:          "P",
			Email:       "p@x.com",
			Phone:       "+15551234567",
			Name:        "Pat Doe",
			AuthMethods: []string{"credentials", "google"},
			IsMaster:    true,
			IsActive:    true,
			Status:      identity.StatusActive,
		},
		{
			ID:          "A",
			Email:       "a@x.com",
			Name:        "Ann",
			AuthMethods: []string{},
			Status:      identity.StatusMerged,
			MergedInto:  "P",
		},
		{
			ID:          "S",
			Phone:       "+15551234567",
			AuthMethods: []string{"google"},
			Status:      identity.StatusMerged,
			MergedInto:  "P",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetGroupMembers() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetGroupMembers_UnknownGroup(t *testing.T) {
	svc := newTestService(t, createTestStore(t))

	got, err := svc.GetGroupMembers(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.GetGroupMembers(context.Background(), "")
	assert.True(t, IsInvalidRequest(err))
}

func TestResolveLoginTarget(t *testing.T) {
	st := createTestStore(t)
	mustInsert(t, st,
		record("A", "a@x.com", "", ""),
		record("B", "b@x.com", "", ""),
		record("C", "c@x.com", "", ""),
	)
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.Merge(ctx, "B", []string{"A"})
	require.NoError(t, err)
	_, err = svc.Merge(ctx, "C", []string{"B"})
	require.NoError(t, err)

	for _, id := range []string{"A", "B", "C"} {
		got, err := svc.ResolveLoginTarget(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, "C", got.ID, "resolve %s", id)
	}

	_, err = svc.ResolveLoginTarget(ctx, "ghost")
	assert.True(t, IsNotFound(err))
}

func TestResolveLoginTarget_Cycle(t *testing.T) {
	st := createTestStore(t)
	x := record("X", "", "", "")
	x.Status = identity.StatusMerged
	x.MergedInto = "Y"
	y := record("Y", "", "", "")
	y.Status = identity.StatusMerged
	y.MergedInto = "X"
	mustInsert(t, st, x, y)
	svc := newTestService(t, st)

	_, err := svc.ResolveLoginTarget(context.Background(), "X")
	require.Error(t, err)
	assert.Equal(t, ErrCodeCycleDetected, CodeOf(err))
}

func TestHistory(t *testing.T) {
	st := createTestStore(t)
	mustInsert(t, st,
		record("P", "p@x.com", "", ""),
		record("S1", "s1@x.com", "", ""),
		record("S2", "s2@x.com", "", ""),
	)
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.Merge(ctx, "P", []string{"S2"})
	require.NoError(t, err)
	_, err = svc.Merge(ctx, "P", []string{"S1", "S2"})
	require.NoError(t, err)

	entries, err := svc.History(ctx, "group-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "S2", entries[0].SecondaryID)
	assert.Equal(t, "S1", entries[1].SecondaryID)
	for _, e := range entries {
		assert.Equal(t, "P", e.PrimaryID)
		assert.Equal(t, "group-1", e.GroupID)
		want, err := identity.MergeEntryID("group-1", "P", e.SecondaryID)
		require.NoError(t, err)
		assert.Equal(t, want, e.ID)
	}
}
