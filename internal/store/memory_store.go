package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-memory implementation of the snapshot Store. Snapshots
// themselves are immutable; the store only guards its bookkeeping and the
// version counter. Identities idle past their TTL are evicted by a background
// sweep.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[int64]*entry
	shutdown   chan struct{}
	sweepEvery time.Duration
	casRetries atomic.Uint64
}

type entry struct {
	mu     sync.Mutex
	record Record
}

// NewMemoryStore creates a memory-backed snapshot store with the default
// sweep interval.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithSweep(30 * time.Second)
}

// NewMemoryStoreWithSweep creates a memory-backed snapshot store sweeping
// expired identities at the given interval.
func NewMemoryStoreWithSweep(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := new(MemoryStore)
	s.records = make(map[int64]*entry)
	s.shutdown = make(chan struct{})
	s.sweepEvery = interval
	go s.sweepExpired()
	return s
}

// Get returns the current record for the identity.
func (s *MemoryStore) Get(ctx context.Context, mmsi int64) (Record, error) {
	if err := checkContext(ctx, "get"); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	e, ok := s.records[mmsi]
	s.mu.RUnlock()
	if !ok {
		return Record{}, notFound(mmsi)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.record
	if rec.Target == nil {
		// Placeholder from a first install still in flight.
		return Record{}, notFound(mmsi)
	}
	if isExpired(rec) {
		rec.Stale = true
	}
	return rec, nil
}

// Put installs a record unconditionally, resetting the version counter.
func (s *MemoryStore) Put(ctx context.Context, record Record) (Record, error) {
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	if err := checkContext(ctx, "put"); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	e, exists := s.records[record.MMSI]
	if !exists {
		e = new(entry)
		s.records[record.MMSI] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	record.Version = 1
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	e.record = record
	return e.record, nil
}

// CompareAndSwap replaces the record if the previous version matches. A
// prevVersion of zero installs the first record for the identity; when a
// concurrent writer already installed one, the call reports a conflict
// instead of overwriting it.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, prevVersion uint64, record Record) (Record, error) {
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	if err := checkContext(ctx, "cas"); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	e, ok := s.records[record.MMSI]
	s.mu.RUnlock()
	if !ok {
		if prevVersion != 0 {
			return Record{}, notFound(record.MMSI)
		}
		s.mu.Lock()
		e, ok = s.records[record.MMSI]
		if !ok {
			e = new(entry)
			s.records[record.MMSI] = e
		}
		s.mu.Unlock()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record.Version != prevVersion {
		s.casRetries.Add(1)
		return Record{}, conflict(record.MMSI)
	}
	record.Version = prevVersion + 1
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	e.record = record
	return e.record, nil
}

// CASRetries reports how many compare-and-swap attempts lost their race.
func (s *MemoryStore) CASRetries() uint64 {
	return s.casRetries.Load()
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close stops background maintenance routines.
func (s *MemoryStore) Close() {
	close(s.shutdown)
}

func (s *MemoryStore) sweepExpired() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.pruneExpired()
		}
	}
}

func (s *MemoryStore) pruneExpired() {
	now := time.Now().UTC()
	s.mu.Lock()
	for mmsi, entry := range s.records {
		entry.mu.Lock()
		rec := entry.record
		entry.mu.Unlock()
		if rec.TTL <= 0 {
			continue
		}
		if rec.UpdatedAt.Add(rec.TTL).Before(now) {
			delete(s.records, mmsi)
		}
	}
	s.mu.Unlock()
}

func isExpired(record Record) bool {
	if record.TTL <= 0 {
		return false
	}
	return record.UpdatedAt.Add(record.TTL).Before(time.Now().UTC())
}

func checkContext(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("memory store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}
