package session

import (
	"context"
	"time"
)

// Record mirrors the aria.refresh_tokens row used by the token subsystem.
//
// IMPORTANT: TokenHash is stored server-side; the plain refresh token is
// never persisted.
type Record struct {
	ID        string
	TokenHash string
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// DurableStore is the single source of truth for refresh-token validity.
//
// Implementations must make Revoke a linearization point for rotation:
// exactly one concurrent Revoke of the same unrevoked record may report
// that it performed the transition.
type DurableStore interface {
	// Insert creates a new refresh-token record. The token is not usable
	// until Insert has succeeded.
	Insert(ctx context.Context, rec Record) error

	// GetByTokenHash loads a record by token hash.
	// Returns ErrTokenNotFound when no record matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (Record, error)

	// Revoke marks the record revoked. The bool result reports whether this
	// call performed the valid->revoked transition (rotation winner).
	// Returns ErrTokenNotFound when no record matches.
	Revoke(ctx context.Context, now time.Time, tokenHash string) (bool, error)

	// RevokeAllForSubject revokes every record for a subject (idempotent).
	RevokeAllForSubject(ctx context.Context, now time.Time, subjectID string) error

	// DeleteExpired removes records that are expired or revoked.
	// Pure housekeeping; idempotent and safe to run concurrently.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cache is the optional fast-path lookup for refresh-token validity.
//
// It is advisory only: entries are populated exclusively from durable data
// with a TTL no longer than the remaining durable lifetime, so a hit can be
// trusted without consulting the durable store. Errors degrade lookups to
// the durable path and must never fail the caller.
type Cache interface {
	// Get returns the cached subject for a token hash, if present and fresh.
	Get(tokenHash string, now time.Time) (subjectID string, ok bool, err error)

	// Set stores a token hash -> subject mapping with a TTL.
	Set(tokenHash, subjectID string, ttl time.Duration) error

	// Delete evicts a token hash (best-effort).
	Delete(tokenHash string) error

	// DeleteSubject evicts every entry for a subject (best-effort).
	DeleteSubject(subjectID string) error
}
