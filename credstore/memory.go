package credstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec      Record
	deadline time.Time
}

// MemoryStore is a process-local Store. It is linearizable within one process
// only and is meant for tests, examples and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock lets tests drive TTL eviction.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) GetActive(ctx context.Context, subject, purpose string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(recordKey(subject, purpose))
	if !ok {
		return nil, ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := validateRecord(rec, ttl); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.Subject, rec.Purpose)
	if _, ok := s.liveLocked(key); ok {
		return ErrConflict
	}

	stored := *rec
	stored.Version = 1
	s.entries[key] = memoryEntry{rec: stored, deadline: s.now().Add(ttl)}
	rec.Version = 1
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := validateRecord(rec, ttl); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.Subject, rec.Purpose)
	current, ok := s.liveLocked(key)
	if !ok || current.rec.Version != rec.Version {
		return ErrConflict
	}

	stored := *rec
	stored.Version = rec.Version + 1
	s.entries[key] = memoryEntry{rec: stored, deadline: s.now().Add(ttl)}
	rec.Version = stored.Version
	return nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if _, ok := s.liveLocked(key); ok {
			n++
		}
	}
	return n
}

func (s *MemoryStore) liveLocked(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.deadline) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
