package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PriorityQueue is a ZSET-backed queue popped lowest score first
type PriorityQueue struct {
	client *Client
	key    string
}

func NewPriorityQueue(client *Client, key string) *PriorityQueue {
	return &PriorityQueue{client: client, key: key}
}

// Push adds member with the given priority. Re-adding a member updates its priority.
func (q *PriorityQueue) Push(ctx context.Context, member string, priority float64) error {
	return q.client.rdb.ZAdd(ctx, q.key, redis.Z{Score: priority, Member: member}).Err()
}

// Pop removes and returns the lowest-priority member. ok is false when the queue is empty.
func (q *PriorityQueue) Pop(ctx context.Context) (string, bool, error) {
	res, err := q.client.rdb.ZPopMin(ctx, q.key, 1).Result()
	if err != nil {
		return "", false, err
	}
	if len(res) == 0 {
		return "", false, nil
	}
	member, ok := res[0].Member.(string)
	return member, ok, nil
}

func (q *PriorityQueue) Len(ctx context.Context) (int64, error) {
	return q.client.rdb.ZCard(ctx, q.key).Result()
}
