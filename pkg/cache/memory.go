package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type queued struct {
	id       string
	priority float64
}

// MemoryStore is an in-process Store used by tests and single-process runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryEntry
	locks  map[string]time.Time
	queue  []queued
	hits   int64
	misses int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryEntry),
		locks:  make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.values, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = entry
	return nil
}

func (s *MemoryStore) TryLock(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, held := s.locks[id]; held && now.Before(until) {
		return false, nil
	}
	s.locks[id] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
	return nil
}

func (s *MemoryStore) EnqueuePriority(_ context.Context, id string, priority float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.queue {
		if s.queue[i].id == id {
			s.queue[i].priority = priority
			s.sortQueue()
			return nil
		}
	}
	s.queue = append(s.queue, queued{id: id, priority: priority})
	s.sortQueue()
	return nil
}

func (s *MemoryStore) sortQueue() {
	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].priority == s.queue[j].priority {
			return s.queue[i].id < s.queue[j].id
		}
		return s.queue[i].priority < s.queue[j].priority
	})
}

func (s *MemoryStore) DequeuePriority(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return "", false, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next.id, true, nil
}

// QueueLen returns the number of identifiers waiting for warm-up.
func (s *MemoryStore) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *MemoryStore) RecordHit(_ context.Context) error {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) RecordMiss(_ context.Context) error {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) HitRate(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newStats(s.hits, s.misses), nil
}
