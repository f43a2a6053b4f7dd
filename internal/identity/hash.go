package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ids. The version suffix allows the
// hashing scheme to change without colliding with stored ids.
const (
	DomainMergeEntry = "idlink/merge-entry/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MergeEntryID computes the content-addressed id of the merge-log entry
// recording that secondaryID was absorbed into primaryID within groupID.
//
// The id does not include a timestamp: re-applying the same merge yields the
// same id, so the log insert is a no-op the second time.
func MergeEntryID(groupID, primaryID, secondaryID string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"group_id":     groupID,
		"primary_id":   primaryID,
		"secondary_id": secondaryID,
	})
	if err != nil {
		return "", fmt.Errorf("MergeEntryID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMergeEntry, canonical), nil
}
