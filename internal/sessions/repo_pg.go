package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"variance-backend/internal/commentary"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Save upserts the session snapshot.
func (r *PGRepo) Save(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO sessions (
    id,
    identity_id,
    identity_source,
    snapshot,
    created_at,
    updated_at,
    expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    identity_id = EXCLUDED.identity_id,
    identity_source = EXCLUDED.identity_source,
    snapshot = EXCLUDED.snapshot,
    updated_at = EXCLUDED.updated_at,
    expires_at = EXCLUDED.expires_at`

	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.DB.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.IdentityID,
		rec.IdentitySource,
		snapshot,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.ExpiresAt,
	)
	return err
}

// Get returns an unexpired session.
func (r *PGRepo) Get(ctx context.Context, id string) (Record, error) {
	const query = `
SELECT id, identity_id, identity_source, snapshot, created_at, updated_at, expires_at
FROM sessions
WHERE id = $1 AND expires_at > now()`

	var (
		rec      Record
		snapshot []byte
		identity sql.NullString
		source   sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&identity,
		&source,
		&snapshot,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if identity.Valid {
		rec.IdentityID = identity.String
	}
	if source.Valid {
		rec.IdentitySource = source.String
	}
	if len(snapshot) > 0 {
		var snap commentary.Snapshot
		if err := json.Unmarshal(snapshot, &snap); err != nil {
			return Record{}, fmt.Errorf("decode snapshot: %w", err)
		}
		rec.Snapshot = snap
	}
	return rec, nil
}

// Delete removes a session row.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired removes rows that expired before now.
func (r *PGRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
