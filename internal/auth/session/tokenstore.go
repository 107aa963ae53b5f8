package session

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TokenStore composes the durable store with the follower cache and owns the
// consistency protocol between the two.
//
// The durable store is the sole authority. The cache is written only after a
// durable write succeeds (write-through follower) or repopulated from durable
// data on a miss (read-through repair), always with a TTL bounded by the
// remaining durable lifetime. Cache unavailability degrades to durable-only
// lookups and never raises an error to callers.
type TokenStore struct {
	log     *slog.Logger
	durable DurableStore
	cache   Cache
}

// NewTokenStore composes a durable store with an optional cache.
// A nil cache disables the fast path.
func NewTokenStore(log *slog.Logger, durable DurableStore, cache Cache) *TokenStore {
	if log == nil {
		log = slog.Default()
	}
	if cache == nil {
		cache = NoopCache{}
	}
	return &TokenStore{log: log, durable: durable, cache: cache}
}

// Persist durably inserts a refresh-token record and then populates the cache.
// The token is not usable unless the durable insert succeeds; the cache write
// is best-effort and never written first.
func (s *TokenStore) Persist(ctx context.Context, rec Record) error {
	if err := s.durable.Insert(ctx, rec); err != nil {
		return err
	}

	ttl := time.Until(rec.ExpiresAt)
	if err := s.cache.Set(rec.TokenHash, rec.SubjectID, ttl); err != nil {
		s.log.Warn("tokenstore.cache.set.fail", "err", err)
	} else {
		tokenCacheFills.Inc()
	}
	return nil
}

// IsValid reports whether a refresh-token hash is currently valid.
//
// A cache hit is trusted and returned immediately: entries only ever come
// from durable data with a TTL no longer than the remaining durable
// lifetime, so a hit cannot outlive validity. On a miss the durable store
// decides, and a valid record repopulates the cache.
//
// Durable-store unavailability degrades to invalid rather than failing.
func (s *TokenStore) IsValid(ctx context.Context, tokenHash string, now time.Time) bool {
	if _, ok, err := s.cache.Get(tokenHash, now); err != nil {
		// Degraded, not a miss: keep the hit/miss ratio honest.
		s.log.Warn("tokenstore.cache.get.fail", "err", err)
		tokenCacheErrors.Inc()
	} else if ok {
		tokenCacheHits.Inc()
		return true
	} else {
		tokenCacheMisses.Inc()
	}

	rec, err := s.durable.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, ErrTokenNotFound) {
		return false
	}
	if err != nil {
		s.log.Error("tokenstore.durable.get.fail", "err", err)
		return false
	}

	if rec.RevokedAt != nil || !rec.ExpiresAt.After(now) {
		return false
	}

	if err := s.cache.Set(tokenHash, rec.SubjectID, rec.ExpiresAt.Sub(now)); err != nil {
		s.log.Warn("tokenstore.cache.set.fail", "err", err)
	} else {
		tokenCacheFills.Inc()
	}
	return true
}

// Revoke marks the durable record revoked and evicts the cache entry.
// Eviction is best-effort: durable revocation is authoritative and becomes
// visible on the next miss-path lookup at worst.
func (s *TokenStore) Revoke(ctx context.Context, now time.Time, tokenHash string) (bool, error) {
	won, err := s.durable.Revoke(ctx, now, tokenHash)
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return false, err
	}

	if evictErr := s.cache.Delete(tokenHash); evictErr != nil {
		s.log.Warn("tokenstore.cache.evict.fail", "err", evictErr)
	}
	return won, err
}

// RevokeAllForSubject revokes every durable record for a subject and evicts
// the subject's cache entries. Eviction is best-effort: if it fails, the
// stale entries remain logically harmless because miss-path lookups report
// revoked and the entry TTL bounds the staleness window.
func (s *TokenStore) RevokeAllForSubject(ctx context.Context, now time.Time, subjectID string) error {
	if err := s.durable.RevokeAllForSubject(ctx, now, subjectID); err != nil {
		return err
	}
	if err := s.cache.DeleteSubject(subjectID); err != nil {
		s.log.Warn("tokenstore.cache.evict_subject.fail", "err", err)
	}
	return nil
}

// SweepExpired deletes durable records that are expired or revoked.
// Idempotent housekeeping, safe to run concurrently with any other operation.
func (s *TokenStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.durable.DeleteExpired(ctx, now)
}
