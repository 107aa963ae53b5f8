package identity

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-memory Store for tests and single-node dev runs.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]User
	byNorm map[string]string // username_norm -> user id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]User),
		byNorm: make(map[string]string),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, in CreateUserInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(in.Username)
	if !ValidUsername(norm) {
		return User{}, ErrInvalidUsername
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNorm[norm]; taken {
		return User{}, ErrUsernameTaken
	}

	u := User{
		ID:           ulid.Make().String(),
		Username:     in.Username,
		UsernameNorm: norm,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byNorm[norm] = u.ID
	return u, nil
}

// GetByUsername implements Store. The argument must already be normalized.
func (s *MemoryStore) GetByUsername(ctx context.Context, usernameNorm string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNorm[usernameNorm]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

var _ Store = (*MemoryStore)(nil)
