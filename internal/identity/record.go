package identity

import (
	"fmt"
	"slices"
	"time"
)

// AccountStatus is the lifecycle state of a record.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusMerged      AccountStatus = "merged"
	StatusDeactivated AccountStatus = "deactivated"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusMerged, StatusDeactivated:
		return true
	}
	return false
}

// Provider tags derived from record fields rather than provider accounts.
const (
	ProviderCredentials = "credentials"
	ProviderPhone       = "phone"
)

// AvatarUpload marks an avatar the user uploaded directly.
const AvatarUpload = "upload"

// Record is one stored identity.
//
// LinkedEmails and LinkedPhones always contain the primary value when one is
// set; Normalize enforces that. Providers holds only tags backed by an OAuth
// provider account. The full provider set is derived by LinkedProviders.
type Record struct {
	ID           string
	PrimaryEmail string
	PrimaryPhone string
	LinkedEmails []string
	LinkedPhones []string
	Providers    []string
	Name         string

	PasswordHash string
	Avatar       string
	// AvatarSource is empty or AvatarUpload for user-supplied images, or the
	// OAuth provider tag that supplied the image.
	AvatarSource string

	EmailVerified bool
	PhoneVerified bool

	GroupID    string
	IsMaster   bool
	Status     AccountStatus
	MergedInto string
	MergedAt   *time.Time

	CreatedAt  time.Time
	LastSignIn *time.Time

	// Version is the compare-and-swap token. The store bumps it on every
	// write and rejects updates carrying a stale value.
	Version int64
}

// IsActive reports whether the record can still authenticate or be merged
// into. Deactivated records count as active for group listings; only merged
// records are inert.
func (r Record) IsActive() bool {
	return r.Status != StatusMerged
}

// HasOAuthAvatar reports whether the avatar was supplied by one of the
// record's OAuth providers.
func (r Record) HasOAuthAvatar() bool {
	if r.Avatar == "" || r.AvatarSource == "" || r.AvatarSource == AvatarUpload {
		return false
	}
	return slices.Contains(r.Providers, r.AvatarSource)
}

// LinkedProviders returns the sorted provider set: "credentials" when a
// password hash exists, "phone" for a verified primary phone, then every
// OAuth provider tag.
func (r Record) LinkedProviders() []string {
	out := make([]string, 0, len(r.Providers)+2)
	if r.PasswordHash != "" {
		out = append(out, ProviderCredentials)
	}
	if r.PrimaryPhone != "" && r.PhoneVerified {
		out = append(out, ProviderPhone)
	}
	out = append(out, r.Providers...)
	slices.Sort(out)
	return slices.Compact(out)
}

// BestEmail returns the primary email, or the first linked email.
func (r Record) BestEmail() string {
	if r.PrimaryEmail != "" {
		return r.PrimaryEmail
	}
	if len(r.LinkedEmails) > 0 {
		return r.LinkedEmails[0]
	}
	return ""
}

// BestPhone returns the primary phone, or the first linked phone.
func (r Record) BestPhone() string {
	if r.PrimaryPhone != "" {
		return r.PrimaryPhone
	}
	if len(r.LinkedPhones) > 0 {
		return r.LinkedPhones[0]
	}
	return ""
}

// Normalize canonicalizes identifiers in place: emails and phones are
// normalized, the primary values are folded into the linked sets, and every
// set is deduplicated preserving first occurrence. An unset status becomes
// active.
func (r *Record) Normalize() {
	r.PrimaryEmail = NormalizeEmail(r.PrimaryEmail)
	r.PrimaryPhone = NormalizePhone(r.PrimaryPhone)

	emails := make([]string, 0, len(r.LinkedEmails)+1)
	if r.PrimaryEmail != "" {
		emails = append(emails, r.PrimaryEmail)
	}
	for _, e := range r.LinkedEmails {
		emails = append(emails, NormalizeEmail(e))
	}
	r.LinkedEmails = Union(emails)

	phones := make([]string, 0, len(r.LinkedPhones)+1)
	if r.PrimaryPhone != "" {
		phones = append(phones, r.PrimaryPhone)
	}
	for _, p := range r.LinkedPhones {
		phones = append(phones, NormalizePhone(p))
	}
	r.LinkedPhones = Union(phones)

	r.Providers = Union(r.Providers)

	if r.Status == "" {
		r.Status = StatusActive
	}
}

// Validate checks the structural invariants of a single record.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("record %s: unknown status %q", r.ID, r.Status)
	}
	if r.Status == StatusMerged && r.MergedInto == "" {
		return fmt.Errorf("record %s: merged record without mergedInto", r.ID)
	}
	if r.Status != StatusMerged && r.MergedInto != "" {
		return fmt.Errorf("record %s: mergedInto set on %s record", r.ID, r.Status)
	}
	if r.MergedInto == r.ID && r.ID != "" {
		return fmt.Errorf("record %s: merged into itself", r.ID)
	}
	return nil
}
