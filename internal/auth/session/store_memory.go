package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a dev/test fallback when DB is not configured.
// It implements the same linearization contract as the Postgres store:
// the mutex makes Revoke's check-and-set atomic, so only one concurrent
// rotation of the same token observes the transition.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record // token hash -> record
}

// NewMemoryStore constructs an in-memory DurableStore implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Insert creates a new refresh-token record.
func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.TokenHash] = rec
	return nil
}

// GetByTokenHash loads a record by token hash.
func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenHash]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	return rec, nil
}

// Revoke marks a record revoked, reporting whether this call transitioned it.
func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, tokenHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenHash]
	if !ok {
		return false, ErrTokenNotFound
	}
	if rec.RevokedAt != nil {
		return false, nil
	}

	t := now
	rec.RevokedAt = &t
	s.records[tokenHash] = rec
	return true, nil
}

// RevokeAllForSubject revokes every record for a subject (idempotent).
func (s *MemoryStore) RevokeAllForSubject(ctx context.Context, now time.Time, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, rec := range s.records {
		if rec.SubjectID != subjectID || rec.RevokedAt != nil {
			continue
		}
		t := now
		rec.RevokedAt = &t
		s.records[hash] = rec
	}
	return nil
}

// DeleteExpired removes records that are expired or revoked.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, rec := range s.records {
		if rec.RevokedAt != nil || !rec.ExpiresAt.After(now) {
			delete(s.records, hash)
			n++
		}
	}
	return n, nil
}

var _ DurableStore = (*MemoryStore)(nil)
