package session

import (
	"sync"
	"time"
)

// MemoryCache is an in-process TTL cache for refresh-token lookups.
// Entries expire lazily on read; SweepExpired-style eviction is not needed
// because entry TTLs never exceed the remaining durable lifetime.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	subjectID string
	expiresAt time.Time
}

// NewMemoryCache constructs an in-memory Cache implementation.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached subject for a token hash, if present and fresh.
func (c *MemoryCache) Get(tokenHash string, now time.Time) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[tokenHash]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(now) {
		delete(c.entries, tokenHash)
		return "", false, nil
	}
	return e.subjectID, true, nil
}

// Set stores a token hash -> subject mapping with a TTL.
func (c *MemoryCache) Set(tokenHash, subjectID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tokenHash] = cacheEntry{
		subjectID: subjectID,
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

// Delete evicts a token hash.
func (c *MemoryCache) Delete(tokenHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, tokenHash)
	return nil
}

// DeleteSubject evicts every entry for a subject.
func (c *MemoryCache) DeleteSubject(subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hash, e := range c.entries {
		if e.subjectID == subjectID {
			delete(c.entries, hash)
		}
	}
	return nil
}

var _ Cache = (*MemoryCache)(nil)

// NoopCache disables the fast path without changing correctness:
// every lookup misses and falls through to the durable store.
type NoopCache struct{}

// Get always misses.
func (NoopCache) Get(string, time.Time) (string, bool, error) { return "", false, nil }

// Set discards the entry.
func (NoopCache) Set(string, string, time.Duration) error { return nil }

// Delete is a no-op.
func (NoopCache) Delete(string) error { return nil }

// DeleteSubject is a no-op.
func (NoopCache) DeleteSubject(string) error { return nil }

var _ Cache = NoopCache{}
