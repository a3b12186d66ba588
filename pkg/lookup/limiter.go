package lookup

import (
	"context"
	"sync"
	"time"

	"github.com/Ramsey-B/oak/pkg/redis"
)

// RateLimiter blocks until one more request fits the budget.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// WindowLimiter is an in-process sliding-window limiter.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// reserve records a request if the window has room, otherwise it returns how
// long until the oldest request leaves the window.
func (l *WindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(l.stamps) && !l.stamps[drop].After(cutoff) {
		drop++
	}
	l.stamps = l.stamps[drop:]

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return 0
	}
	return l.stamps[0].Add(l.window).Sub(now)
}

func (l *WindowLimiter) Wait(ctx context.Context) error {
	if l.limit <= 0 {
		return nil
	}
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RedisLimiter shares one request budget across every process using the same key.
type RedisLimiter struct {
	limiter *redis.RateLimiter
	key     string
	limit   int64
	window  time.Duration
}

func NewRedisLimiter(limiter *redis.RateLimiter, key string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		limiter: limiter,
		key:     key,
		limit:   int64(limit),
		window:  window,
	}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	_, err := l.limiter.Wait(ctx, l.key, l.limit, l.window)
	return err
}
