package identity

import (
	"errors"
	"time"
)

// Store sentinels shared by every identity store implementation.
var (
	ErrNotFound = errors.New("identity not found")
	// ErrExists means an insert found the id already taken.
	ErrExists = errors.New("identity already exists")
	// ErrConflict means a compare-and-swap update lost a race: the row's
	// version or status changed after it was read.
	ErrConflict = errors.New("identity changed concurrently")
)

// MergePlan is the fully resolved outcome of a merge, ready to be applied
// atomically.
//
// Primary and Secondaries carry the desired post-merge state. Their Version
// fields hold the versions observed when the plan was built; the store
// rejects the whole plan with ErrConflict if any row moved since.
type MergePlan struct {
	GroupID     string
	Primary     Record
	Secondaries []Record
	MergedAt    time.Time
}

// MergeEntry is one merge-log row: secondary absorbed into primary.
type MergeEntry struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	PrimaryID   string    `json:"primary_id"`
	SecondaryID string    `json:"secondary_id"`
	MergedAt    time.Time `json:"merged_at"`
	Seq         int64     `json:"seq"`
}
