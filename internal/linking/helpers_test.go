package linking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/store"
	"github.com/roach88/idlink/internal/testutil"
)

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new temp-file store for testing.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestService wires a Service with a deterministic clock and group ids
// "group-1", "group-2", ...
func newTestService(t *testing.T, st Store, opts ...Option) *Service {
	t.Helper()
	clock := testutil.NewDeterministicClock(testEpoch)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock.Now),
		WithGroupIDs(testutil.NewSequentialIDs("group")),
		WithRecordIDs(testutil.NewSequentialIDs("rec")),
		WithRetryDelay(time.Millisecond),
	}
	return New(st, append(base, opts...)...)
}

func record(id, email, phone, name string) identity.Record {
	return identity.Record{
		ID:           id,
		PrimaryEmail: email,
		PrimaryPhone: phone,
		Name:         name,
		Status:       identity.StatusActive,
		CreatedAt:    testEpoch,
	}
}

func mustInsert(t *testing.T, st Store, recs ...identity.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, st.Insert(context.Background(), r), "Insert(%s)", r.ID)
	}
}

func mustGet(t *testing.T, st Store, id string) identity.Record {
	t.Helper()
	rec, err := st.Get(context.Background(), id)
	require.NoError(t, err, "Get(%s)", id)
	return rec
}

func candidateIDs(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}

var errInjected = errors.New("injected store failure")

// faultyStore wraps a Store and fails selected operations.
type faultyStore struct {
	Store
	failFind  bool
	failGet   bool
	failApply error

	applyCalls atomic.Int32
}

func (f *faultyStore) FindByEmail(ctx context.Context, email string) ([]identity.Record, error) {
	if f.failFind {
		return nil, errInjected
	}
	return f.Store.FindByEmail(ctx, email)
}

func (f *faultyStore) GetMany(ctx context.Context, ids []string) ([]identity.Record, error) {
	if f.failGet {
		return nil, errInjected
	}
	return f.Store.GetMany(ctx, ids)
}

func (f *faultyStore) ApplyMerge(ctx context.Context, plan identity.MergePlan) error {
	f.applyCalls.Add(1)
	if f.failApply != nil {
		return f.failApply
	}
	return f.Store.ApplyMerge(ctx, plan)
}

// racingStore runs race once, right after the first batch read, so the
// plan built from that read is stale by the time it is applied.
type racingStore struct {
	Store
	once sync.Once
	race func()
}

func (r *racingStore) GetMany(ctx context.Context, ids []string) ([]identity.Record, error) {
	recs, err := r.Store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	r.once.Do(r.race)
	return recs, nil
}
