package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ramsey-B/oak/pkg/redis"
)

const (
	defaultKeyPrefix = "oak:cache:"
	hitsKey          = "stats:hits"
	missesKey        = "stats:misses"
	warmupKey        = "warmup"
)

// RedisStore is the shared Store backed by Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	locker *redis.Locker
	queue  *redis.PriorityQueue

	mu   sync.Mutex
	held map[string]*redis.Lock
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		locker: redis.NewLocker(client, prefix+"lock:"),
		queue:  redis.NewPriorityQueue(client, prefix+warmupKey),
		held:   make(map[string]*redis.Lock),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := s.client.Get(ctx, s.prefix+key)
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl)
}

func (s *RedisStore) TryLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	lock, err := s.locker.Acquire(ctx, id, ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.held[id] = lock
	s.mu.Unlock()
	return true, nil
}

// Unlock releases a lock taken by this store. A lock that already expired is not an error.
func (s *RedisStore) Unlock(ctx context.Context, id string) error {
	s.mu.Lock()
	lock, ok := s.held[id]
	delete(s.held, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := lock.Release(ctx); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
		return err
	}
	return nil
}

func (s *RedisStore) EnqueuePriority(ctx context.Context, id string, priority float64) error {
	return s.queue.Push(ctx, id, priority)
}

func (s *RedisStore) DequeuePriority(ctx context.Context) (string, bool, error) {
	return s.queue.Pop(ctx)
}

func (s *RedisStore) RecordHit(ctx context.Context) error {
	_, err := s.client.Incr(ctx, s.prefix+hitsKey)
	return err
}

func (s *RedisStore) RecordMiss(ctx context.Context) error {
	_, err := s.client.Incr(ctx, s.prefix+missesKey)
	return err
}

func (s *RedisStore) HitRate(ctx context.Context) (Stats, error) {
	hits, err := s.client.Int(ctx, s.prefix+hitsKey)
	if err != nil {
		return Stats{}, err
	}
	misses, err := s.client.Int(ctx, s.prefix+missesKey)
	if err != nil {
		return Stats{}, err
	}
	return newStats(hits, misses), nil
}
