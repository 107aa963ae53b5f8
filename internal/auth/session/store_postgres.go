package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements DurableStore using PostgreSQL (aria.refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed durable token store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert creates a new refresh-token record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aria.refresh_tokens (
			id, token_hash, subject_id,
			issued_at, expires_at, revoked_at
		) VALUES (
			$1, $2, $3,
			$4, $5, NULL
		)
	`, rec.ID, rec.TokenHash, rec.SubjectID, rec.IssuedAt, rec.ExpiresAt)
	return err
}

// GetByTokenHash loads a record by token hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	var rec Record

	err := s.pool.QueryRow(ctx, `
		SELECT id, token_hash, subject_id, issued_at, expires_at, revoked_at
		FROM aria.refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&rec.ID,
		&rec.TokenHash,
		&rec.SubjectID,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenNotFound
	}
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// Revoke marks a record revoked.
//
// The conditional UPDATE is the rotation linearization point: when two
// rotations race on the same token, exactly one UPDATE matches the
// unrevoked row and reports the transition.
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, tokenHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE aria.refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// No transition: distinguish already-revoked from missing.
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM aria.refresh_tokens WHERE token_hash = $1)
	`, tokenHash).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrTokenNotFound
	}
	return false, nil
}

// RevokeAllForSubject revokes every record for a subject (idempotent).
func (s *PostgresStore) RevokeAllForSubject(ctx context.Context, now time.Time, subjectID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE aria.refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE subject_id = $1
	`, subjectID, now)
	return err
}

// DeleteExpired removes records that are expired or revoked.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM aria.refresh_tokens
		WHERE revoked_at IS NOT NULL OR expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ DurableStore = (*PostgresStore)(nil)
