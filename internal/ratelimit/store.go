package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store is the TTL-capable side table behind the guard. Expired entries
// may be returned as nil; eviction timing is a hygiene detail, not a
// correctness requirement.
type Store interface {
	Get(ctx context.Context, identity string) (*Entry, error)
	Put(ctx context.Context, identity string, e *Entry, ttl time.Duration) error
	Delete(ctx context.Context, identity string) error
}

// MemoryStore is the process-local default. A background janitor purges
// idle entries so the table stays bounded.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	idleTTL time.Duration
	done    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// sweepInterval is how often the janitor runs.
const sweepInterval = 5 * time.Minute

// NewMemoryStore creates a MemoryStore whose janitor evicts entries
// idle longer than idleTTL.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		idleTTL: idleTTL,
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Get(_ context.Context, identity string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[identity]
	if !ok || time.Now().After(me.expiresAt) {
		return nil, nil
	}
	e := me.entry
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, identity string, e *Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[identity] = memoryEntry{entry: *e, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, identity)
	return nil
}

// Close stops the janitor.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, me := range s.entries {
		if now.After(me.expiresAt) && now.After(me.entry.BannedUntil) {
			delete(s.entries, id)
		}
	}
}
