package tracker

import (
	"sync"
	"time"

	"github.com/coastwatch/aistracker/internal/schema"
)

// PendingParts holds the first half of a split static report until its
// matching second half arrives, keyed by the source the halves share. The
// cache is owned by the caller and passed into ApplyReport; it outlives any
// single snapshot and never expires entries on its own.
type PendingParts interface {
	// Put stores the raw first-half payload, silently overwriting any
	// pending entry for the same source.
	Put(source schema.SourceKey, raw []byte)
	// Remove takes the pending payload for the source out of the cache,
	// reporting whether one was present.
	Remove(source schema.SourceKey) ([]byte, bool)
}

// SyncPendingParts is a mutex-guarded PendingParts implementation. Sources
// are shared across identities, so it synchronizes independently of any
// per-identity locking the caller performs.
type SyncPendingParts struct {
	mu      sync.Mutex
	entries map[schema.SourceKey]pendingEntry
}

type pendingEntry struct {
	raw      []byte
	storedAt time.Time
}

// NewSyncPendingParts creates an empty synchronized pending-part cache.
func NewSyncPendingParts() *SyncPendingParts {
	cache := new(SyncPendingParts)
	cache.entries = make(map[schema.SourceKey]pendingEntry)
	return cache
}

// Put stores the first-half payload for the source.
func (c *SyncPendingParts) Put(source schema.SourceKey, raw []byte) {
	c.mu.Lock()
	c.entries[source] = pendingEntry{raw: raw, storedAt: time.Now()}
	c.mu.Unlock()
}

// Remove takes the pending payload for the source out of the cache.
func (c *SyncPendingParts) Remove(source schema.SourceKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[source]
	if !ok {
		return nil, false
	}
	delete(c.entries, source)
	return entry.raw, true
}

// Peek returns a copy of the pending payload for the source without
// consuming it. Callers that may have to roll back an apply use this to
// capture the half ApplyReport is about to remove.
func (c *SyncPendingParts) Peek(source schema.SourceKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[source]
	if !ok {
		return nil, false
	}
	return cloneBytes(entry.raw), true
}

// Len returns the number of pending first halves.
func (c *SyncPendingParts) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Expire drops entries whose second half has not arrived within maxAge and
// returns how many were dropped. Staleness policy belongs to the caller; the
// pipeline runs this as a periodic sweep.
func (c *SyncPendingParts) Expire(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for source, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, source)
			dropped++
		}
	}
	return dropped
}
