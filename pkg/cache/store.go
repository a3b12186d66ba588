// Package cache keeps registry responses in a shared store so repeated runs
// do not spend the lookup budget twice.
package cache

import (
	"context"
	"time"
)

const (
	DefaultIdentifierTTL = 7 * 24 * time.Hour
	DefaultSearchTTL     = 24 * time.Hour
	DefaultLockTTL       = 30 * time.Second
)

// Store is the narrow contract over the cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// TryLock takes an advisory, TTL-bound lock on id. It reports false when
	// someone else holds it.
	TryLock(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, id string) error

	// EnqueuePriority queues id for warm-up. Lower priorities are dequeued first.
	EnqueuePriority(ctx context.Context, id string, priority float64) error
	DequeuePriority(ctx context.Context) (string, bool, error)

	RecordHit(ctx context.Context) error
	RecordMiss(ctx context.Context) error
	HitRate(ctx context.Context) (Stats, error)
}

type Stats struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Rate   float64 `json:"rate"`
}

func newStats(hits, misses int64) Stats {
	s := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.Rate = float64(hits) / float64(total)
	}
	return s
}
