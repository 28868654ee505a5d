package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PendingKey = "reconciliation:pending"
	ManualKey  = "reconciliation:manual"
)

// RedisQueue keeps open cases on a Redis list, with a second list for manual review.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Name() string { return "redis" }

// Escalate appends the case to the pending list.
func (q *RedisQueue) Escalate(ctx context.Context, c Case) error {
	return q.push(ctx, PendingKey, c)
}

// Requeue puts a case back for another attempt.
func (q *RedisQueue) Requeue(ctx context.Context, c Case) error {
	return q.push(ctx, PendingKey, c)
}

// Manual parks a case for a human.
func (q *RedisQueue) Manual(ctx context.Context, c Case) error {
	return q.push(ctx, ManualKey, c)
}

// Next blocks up to wait for a pending case. ok is false when none arrived.
func (q *RedisQueue) Next(ctx context.Context, wait time.Duration) (Case, bool, error) {
	res, err := q.client.BLPop(ctx, wait, PendingKey).Result()
	if errors.Is(err, redis.Nil) {
		return Case{}, false, nil
	}
	if err != nil {
		return Case{}, false, err
	}
	var c Case
	if err := json.Unmarshal([]byte(res[1]), &c); err != nil {
		return Case{}, false, err
	}
	return c, true, nil
}

// ManualCases lists the cases awaiting review.
func (q *RedisQueue) ManualCases(ctx context.Context) ([]Case, error) {
	items, err := q.client.LRange(ctx, ManualKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Case, 0, len(items))
	for _, item := range items {
		var c Case
		if err := json.Unmarshal([]byte(item), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (q *RedisQueue) push(ctx context.Context, key string, c Case) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, key, payload).Err()
}
