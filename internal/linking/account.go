package linking

import (
	"context"

	"github.com/roach88/idlink/internal/identity"
)

// SignIn resolves id to its login target and stamps the target's last
// sign-in time. Signing in with a merged account lands on its master.
func (s *Service) SignIn(ctx context.Context, id string) (identity.Record, error) {
	target, err := s.ResolveLoginTarget(ctx, id)
	if err != nil {
		return identity.Record{}, err
	}
	if target.Status == identity.StatusDeactivated {
		return identity.Record{}, newInvalidRequest(target.ID, "account is deactivated")
	}

	if err := s.store.RecordSignIn(ctx, target.ID, s.now()); err != nil {
		return identity.Record{}, classify("record sign-in", err)
	}
	rec, err := s.store.Get(ctx, target.ID)
	if err != nil {
		return identity.Record{}, classify("record sign-in", err)
	}
	if rec.ID != id {
		s.logger.Debug("sign-in redirected to master", "record", id, "master", rec.ID)
	}
	return rec, nil
}

// Deactivate soft-deletes an active record. It stops appearing as a
// candidate and can no longer take part in merges; its group membership is
// kept. Deactivating twice is a no-op. Merged records cannot be
// deactivated.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return newInvalidRequest("", "record id is required")
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		lerr := classify("deactivate", err)
		lerr.RecordID = id
		return lerr
	}
	if rec.Status == identity.StatusMerged {
		return newInvalidRequest(id, "record is merged into %s", rec.MergedInto)
	}
	if err := s.store.Deactivate(ctx, id); err != nil {
		return classify("deactivate", err)
	}
	s.logger.Info("deactivated identity", "record", id)
	return nil
}
