package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/idlink/internal/identity"
)

// Insert stores a new record with its linked sets.
// Uses ON CONFLICT(id) DO NOTHING: inserting an existing id leaves the
// stored record untouched and returns identity.ErrExists.
//
// The record is normalized first, so the primary email and phone always
// appear in the linked sets. The stored version starts at 1.
func (s *Store) Insert(ctx context.Context, rec identity.Record) error {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert identity: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO identities
		(id, primary_email, primary_phone, name, password_hash, avatar, avatar_source,
		 email_verified, phone_verified, group_id, is_master, account_status, merged_into,
		 merged_at, created_at, last_sign_in, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.PrimaryEmail,
		rec.PrimaryPhone,
		rec.Name,
		rec.PasswordHash,
		rec.Avatar,
		rec.AvatarSource,
		boolToInt(rec.EmailVerified),
		boolToInt(rec.PhoneVerified),
		rec.GroupID,
		boolToInt(rec.IsMaster),
		string(rec.Status),
		rec.MergedInto,
		toNullMillis(rec.MergedAt),
		toMillis(rec.CreatedAt),
		toNullMillis(rec.LastSignIn),
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	} else if n == 0 {
		return fmt.Errorf("insert identity %s: %w", rec.ID, identity.ErrExists)
	}

	if err := insertSets(ctx, tx, rec); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert identity: commit: %w", err)
	}
	return nil
}

// insertSets adds every linked value of rec. Values already present keep
// their original position; nothing is ever removed.
func insertSets(ctx context.Context, tx *sql.Tx, rec identity.Record) error {
	for _, st := range setTables {
		query := fmt.Sprintf(
			"INSERT INTO %s (identity_id, %s, seq) VALUES (?, ?, ?) ON CONFLICT(identity_id, %s) DO NOTHING",
			st.table, st.column, st.column,
		)
		for i, v := range *st.field(&rec) {
			if _, err := tx.ExecContext(ctx, query, rec.ID, v, i); err != nil {
				return fmt.Errorf("insert into %s: %w", st.table, err)
			}
		}
	}
	return nil
}

// ApplyMerge writes a merge plan in a single transaction.
//
// Every row update is a compare-and-swap on the version observed when the
// plan was built, and requires the row to still be active. If any update
// matches no row, the transaction is rolled back and ErrConflict returned:
// nothing of the plan becomes visible.
//
// Linked sets only grow. Merge-log entries are content-addressed, so
// applying an equivalent plan again cannot duplicate them.
func (s *Store) ApplyMerge(ctx context.Context, plan identity.MergePlan) error {
	primary := plan.Primary
	primary.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply merge: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE identities SET
			primary_email = ?, primary_phone = ?, name = ?, password_hash = ?,
			avatar = ?, avatar_source = ?, email_verified = ?, phone_verified = ?,
			group_id = ?, is_master = 1, account_status = 'active', last_sign_in = ?,
			version = version + 1
		WHERE id = ? AND version = ? AND account_status = 'active'
	`,
		primary.PrimaryEmail,
		primary.PrimaryPhone,
		primary.Name,
		primary.PasswordHash,
		primary.Avatar,
		primary.AvatarSource,
		boolToInt(primary.EmailVerified),
		boolToInt(primary.PhoneVerified),
		plan.GroupID,
		toNullMillis(primary.LastSignIn),
		primary.ID,
		primary.Version,
	)
	if err := checkSwapped(res, err, primary.ID); err != nil {
		return fmt.Errorf("apply merge: %w", err)
	}

	if err := insertSets(ctx, tx, primary); err != nil {
		return fmt.Errorf("apply merge: %w", err)
	}

	mergedAt := toMillis(plan.MergedAt)
	for _, sec := range plan.Secondaries {
		res, err := tx.ExecContext(ctx, `
			UPDATE identities SET
				account_status = 'merged', merged_into = ?, is_master = 0,
				merged_at = ?, group_id = ?, version = version + 1
			WHERE id = ? AND version = ? AND account_status = 'active'
		`, primary.ID, mergedAt, plan.GroupID, sec.ID, sec.Version)
		if err := checkSwapped(res, err, sec.ID); err != nil {
			return fmt.Errorf("apply merge: %w", err)
		}

		entryID, err := identity.MergeEntryID(plan.GroupID, primary.ID, sec.ID)
		if err != nil {
			return fmt.Errorf("apply merge: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO merge_log (id, group_id, primary_id, secondary_id, merged_at, seq)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM merge_log))
			ON CONFLICT(id) DO NOTHING
		`, entryID, plan.GroupID, primary.ID, sec.ID, mergedAt)
		if err != nil {
			return fmt.Errorf("apply merge: write log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply merge: commit: %w", err)
	}
	return nil
}

// checkSwapped turns a compare-and-swap update that matched no row into
// ErrConflict.
func checkSwapped(res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", id, identity.ErrConflict)
	}
	return nil
}

// RecordSignIn stamps the last sign-in time of a record.
func (s *Store) RecordSignIn(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities SET last_sign_in = ?, version = version + 1 WHERE id = ?
	`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("record sign-in: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("record sign-in: %w", err)
	} else if n == 0 {
		return fmt.Errorf("record sign-in %s: %w", id, identity.ErrNotFound)
	}
	return nil
}

// Deactivate soft-deletes an active record. Deactivating an already
// deactivated record is a no-op; merged records cannot be deactivated.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT account_status FROM identities WHERE id = ?", id).Scan(&status)
	if isNoRows(err) {
		return fmt.Errorf("deactivate %s: %w", id, identity.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", id, err)
	}

	switch identity.AccountStatus(status) {
	case identity.StatusDeactivated:
		return nil
	case identity.StatusMerged:
		return fmt.Errorf("deactivate %s: record is merged", id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE identities SET account_status = 'deactivated', version = version + 1
		WHERE id = ? AND account_status = 'active'
	`, id)
	if err := checkSwapped(res, err, id); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}
