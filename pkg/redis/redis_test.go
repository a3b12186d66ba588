package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return Wrap(rdb, logger), mr
}

func TestClient_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	n, err := c.Int(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	_, err = c.Incr(ctx, "counter")
	require.NoError(t, err)
	n, err = c.Int(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	locker := NewLocker(c, "")

	lock, err := locker.Acquire(ctx, "52998224725", time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "52998224725", time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	_, err = locker.Acquire(ctx, "11144477735", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, "11144477735", time.Second)
	assert.NoError(t, err, "lock expires after its TTL")
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, "")

	for i := 0; i < 3; i++ {
		res, err := rl.Allow(ctx, "lookup", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(2-i), res.Remaining)
	}

	res, err := rl.Allow(ctx, "lookup", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryIn, time.Duration(0))

	require.NoError(t, rl.Reset(ctx, "lookup"))
	res, err = rl.Allow(ctx, "lookup", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, "")

	_, err := rl.Wait(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = rl.Wait(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPriorityQueue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	q := NewPriorityQueue(c, "warmup")

	require.NoError(t, q.Push(ctx, "b", 2))
	require.NoError(t, q.Push(ctx, "a", 1))
	require.NoError(t, q.Push(ctx, "c", 3))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.Pop(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreams_PublishConsumeAck(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	s := NewStreams(c)

	require.NoError(t, s.CreateConsumerGroup(ctx, "jobs", "workers"))
	require.NoError(t, s.CreateConsumerGroup(ctx, "jobs", "workers"), "existing group is not an error")

	job := &JobMessage{Type: "full_tree_import", Payload: json.RawMessage(`{"seed":"52998224725"}`)}
	_, err := s.Publish(ctx, "jobs", job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	msgs, err := s.Consume(ctx, "jobs", "workers", "w1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, job.ID, msgs[0].Job.ID)
	assert.JSONEq(t, `{"seed":"52998224725"}`, string(msgs[0].Job.Payload))

	pending, err := s.Pending(ctx, "jobs", "workers", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, s.Ack(ctx, "jobs", "workers", msgs[0].ID))
	pending, err = s.Pending(ctx, "jobs", "workers", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeadLetterQueue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	dlq := NewDeadLetterQueue(c, "", logger)

	_, err := dlq.Add(ctx, &DLQEntry{
		SourceStream: "jobs",
		OriginalJob:  &JobMessage{ID: "job-1", Type: "full_tree_import"},
		ErrorMessage: "upstream returned 503",
		RetryCount:   3,
	})
	require.NoError(t, err)

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].OriginalJob.ID)
	assert.Equal(t, 3, entries[0].RetryCount)
}
