package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps each queue as a Redis list: LPUSH to enqueue, BRPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue builds a queue whose lists live at "<prefix>:<name>".
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: prefix}
}

func (q *RedisQueue) key(queueName string) string {
	return q.prefix + ":" + queueName
}

func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.LPush(ctx, q.key(queueName), raw).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key(queueName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Len reports how many jobs wait on queueName.
func (q *RedisQueue) Len(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, q.key(queueName)).Result()
}

func (q *RedisQueue) Close() error {
	return nil
}
