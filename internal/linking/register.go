package linking

import (
	"context"
	"errors"

	"github.com/roach88/idlink/internal/identity"
)

// NewIdentity is the data captured at registration.
type NewIdentity struct {
	// ID is optional; one is minted when empty.
	ID            string
	Email         string
	Phone         string
	Name          string
	PasswordHash  string
	Providers     []string
	Avatar        string
	AvatarSource  string
	EmailVerified bool
	PhoneVerified bool
}

// RegisterResult is the stored record after registration and the outcome
// of the auto-link attempt that followed it.
type RegisterResult struct {
	Record   identity.Record
	AutoLink AutoLinkResult
}

// Register stores a new unlinked record, then tries to auto-link it. An
// auto-link failure never fails the registration.
func (s *Service) Register(ctx context.Context, in NewIdentity) (RegisterResult, error) {
	id := in.ID
	if id == "" {
		id = s.recordIDs.Generate()
	}

	rec := identity.Record{
		ID:            id,
		PrimaryEmail:  in.Email,
		PrimaryPhone:  in.Phone,
		Providers:     in.Providers,
		Name:          in.Name,
		PasswordHash:  in.PasswordHash,
		Avatar:        in.Avatar,
		AvatarSource:  in.AvatarSource,
		EmailVerified: in.EmailVerified,
		PhoneVerified: in.PhoneVerified,
		Status:        identity.StatusActive,
		CreatedAt:     s.now(),
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return RegisterResult{}, newInvalidRequest(id, "%v", err)
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, identity.ErrExists) {
			return RegisterResult{}, newInvalidRequest(id, "record already exists")
		}
		return RegisterResult{}, classify("register", err)
	}
	s.logger.Info("registered identity", "record", id)

	link := s.AutoLinkIfConfident(ctx, id, Query{
		Email: rec.PrimaryEmail,
		Phone: rec.PrimaryPhone,
		Name:  rec.Name,
	}, 0)

	if stored, err := s.store.Get(ctx, id); err == nil {
		rec = stored
	} else {
		s.logger.Warn("reload after registration failed", "record", id, "error", err)
	}
	return RegisterResult{Record: rec, AutoLink: link}, nil
}
