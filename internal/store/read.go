package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/lookup"
)

// Get returns the record with the given id, whatever its status.
// Returns identity.ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (identity.Record, error) {
	recs, err := s.Find(ctx, lookup.ByIDs([]string{id}))
	if err != nil {
		return identity.Record{}, fmt.Errorf("get identity: %w", err)
	}
	if len(recs) == 0 {
		return identity.Record{}, fmt.Errorf("get identity %s: %w", id, identity.ErrNotFound)
	}
	return recs[0], nil
}

// GetMany returns the records with the given ids in one read, ordered by
// id. Missing ids are simply absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]identity.Record, error) {
	if len(ids) == 0 {
		return []identity.Record{}, nil
	}
	recs, err := s.Find(ctx, lookup.ByIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("get identities: %w", err)
	}
	return recs, nil
}

// FindByEmail returns active records holding email as primary or linked.
func (s *Store) FindByEmail(ctx context.Context, email string) ([]identity.Record, error) {
	recs, err := s.Find(ctx, lookup.ByEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find by email: %w", err)
	}
	return recs, nil
}

// FindByPhone returns active records holding phone as primary or linked.
func (s *Store) FindByPhone(ctx context.Context, phone string) ([]identity.Record, error) {
	recs, err := s.Find(ctx, lookup.ByPhone(phone))
	if err != nil {
		return nil, fmt.Errorf("find by phone: %w", err)
	}
	return recs, nil
}

// FindByName returns one page of active records whose name contains any of
// the blocking keys, case-insensitively: up to limit records with ids after
// the cursor after, in id order. Pass the last id of a full page as the
// next cursor; a short page is the last one.
func (s *Store) FindByName(ctx context.Context, keys []string, after string, limit int) ([]identity.Record, error) {
	if len(keys) == 0 {
		return []identity.Record{}, nil
	}
	recs, err := s.Find(ctx, lookup.ByName(keys, after, limit))
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	return recs, nil
}

// ListGroup returns every member of a group, merged members included,
// master first.
func (s *Store) ListGroup(ctx context.Context, groupID string) ([]identity.Record, error) {
	recs, err := s.Find(ctx, lookup.ByGroup(groupID))
	if err != nil {
		return nil, fmt.Errorf("list group: %w", err)
	}
	return recs, nil
}

// Find runs an arbitrary lookup and returns fully populated records.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Find(ctx context.Context, sel lookup.Select) ([]identity.Record, error) {
	return find(ctx, s.db, sel)
}

func find(ctx context.Context, q queryer, sel lookup.Select) ([]identity.Record, error) {
	query, params, err := compile(sel)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	recs := []identity.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	if err := hydrate(ctx, q, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// scanRecord reads one row selected with recordColumns.
func scanRecord(rows *sql.Rows) (identity.Record, error) {
	var (
		rec                          identity.Record
		status                       string
		emailVerified, phoneVerified int
		isMaster                     int
		createdAt                    int64
		mergedAt, lastSignIn         sql.NullInt64
	)
	err := rows.Scan(
		&rec.ID,
		&rec.PrimaryEmail,
		&rec.PrimaryPhone,
		&rec.Name,
		&rec.PasswordHash,
		&rec.Avatar,
		&rec.AvatarSource,
		&emailVerified,
		&phoneVerified,
		&rec.GroupID,
		&isMaster,
		&status,
		&rec.MergedInto,
		&mergedAt,
		&createdAt,
		&lastSignIn,
		&rec.Version,
	)
	if err != nil {
		return identity.Record{}, fmt.Errorf("scan identity: %w", err)
	}

	rec.EmailVerified = emailVerified != 0
	rec.PhoneVerified = phoneVerified != 0
	rec.IsMaster = isMaster != 0
	rec.Status = identity.AccountStatus(status)
	rec.MergedAt = fromNullMillis(mergedAt)
	rec.CreatedAt = fromMillis(createdAt)
	rec.LastSignIn = fromNullMillis(lastSignIn)
	rec.LinkedEmails = []string{}
	rec.LinkedPhones = []string{}
	rec.Providers = []string{}
	return rec, nil
}

// setTables maps each linked set to its table and value column.
var setTables = []struct {
	table  string
	column string
	field  func(*identity.Record) *[]string
}{
	{"identity_emails", "email", func(r *identity.Record) *[]string { return &r.LinkedEmails }},
	{"identity_phones", "phone", func(r *identity.Record) *[]string { return &r.LinkedPhones }},
	{"identity_providers", "provider", func(r *identity.Record) *[]string { return &r.Providers }},
}

// hydrate loads the linked sets of recs with one query per set table.
func hydrate(ctx context.Context, q queryer, recs []identity.Record) error {
	if len(recs) == 0 {
		return nil
	}

	index := make(map[string]int, len(recs))
	ids := make([]string, len(recs))
	for i, r := range recs {
		index[r.ID] = i
		ids[i] = r.ID
	}

	for _, st := range setTables {
		query := fmt.Sprintf(
			"SELECT identity_id, %s FROM %s WHERE identity_id IN (%s) ORDER BY identity_id COLLATE BINARY ASC, seq ASC",
			st.column, st.table, placeholders(len(ids)),
		)
		if err := loadSet(ctx, q, query, ids, func(id, value string) {
			if i, ok := index[id]; ok {
				field := st.field(&recs[i])
				*field = append(*field, value)
			}
		}); err != nil {
			return fmt.Errorf("load %s: %w", st.table, err)
		}
	}
	return nil
}

func loadSet(ctx context.Context, q queryer, query string, ids []string, add func(id, value string)) error {
	rows, err := q.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return err
		}
		add(id, value)
	}
	return rows.Err()
}

// MergeLog returns the merge history of a group, oldest first.
func (s *Store) MergeLog(ctx context.Context, groupID string) ([]identity.MergeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, primary_id, secondary_id, merged_at, seq
		FROM merge_log
		WHERE group_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query merge log: %w", err)
	}
	defer rows.Close()

	entries := []identity.MergeEntry{}
	for rows.Next() {
		var e identity.MergeEntry
		var mergedAt int64
		if err := rows.Scan(&e.ID, &e.GroupID, &e.PrimaryID, &e.SecondaryID, &mergedAt, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan merge log: %w", err)
		}
		e.MergedAt = fromMillis(mergedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge log: %w", err)
	}
	return entries, nil
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
