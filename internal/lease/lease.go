// Package lease provides the cross-process sync flag and per-ticket locks on Redis.
package lease

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is a process-external flag with a TTL. Release is idempotent.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
	IsHeld(ctx context.Context) (bool, error)
}

// RedisLease stores the flag as a single key.
type RedisLease struct {
	client *redis.Client
	key    string
}

// NewRedisLease builds a lease on key, e.g. "ticket-sync:is_syncing".
func NewRedisLease(client *redis.Client, key string) *RedisLease {
	return &RedisLease{client: client, key: key}
}

// Acquire sets the flag if absent. It reports false when another holder has it.
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release clears the flag whoever set it.
func (l *RedisLease) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

func (l *RedisLease) IsHeld(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
