package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/idlink/internal/identity"
)

// createTestStore creates a new temp-file store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestRecord creates an active record with minimal required fields.
func createTestRecord(id, email, phone, name string) identity.Record {
	return identity.Record{
		ID:           id,
		PrimaryEmail: email,
		PrimaryPhone: phone,
		Name:         name,
		Status:       identity.StatusActive,
		CreatedAt:    testEpoch,
	}
}

// mustInsert inserts records or fails the test.
func mustInsert(t *testing.T, s *Store, recs ...identity.Record) {
	t.Helper()
	for _, r := range recs {
		if err := s.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert(%s) failed: %v", r.ID, err)
		}
	}
}

func ids(recs []identity.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
