package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a keyed lock stays busy past the wait budget.
var ErrLockTimeout = errors.New("lease: timed out waiting for lock")

// UnlockFunc releases a lock taken by KeyedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// KeyedLocker serializes work per key across processes.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisKeyedLocker takes SET NX PX locks tagged with a random token.
type RedisKeyedLocker struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

// NewRedisKeyedLocker builds a locker writing "<prefix>:<key>". ttl bounds how long a crashed
// holder blocks the key; wait bounds how long Lock polls.
func NewRedisKeyedLocker(client *redis.Client, prefix string, ttl, wait time.Duration) *RedisKeyedLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &RedisKeyedLocker{client: client, prefix: prefix, ttl: ttl, wait: wait, interval: 50 * time.Millisecond}
}

func (l *RedisKeyedLocker) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	lockKey := l.prefix + ":" + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.interval
	policy.MaxInterval = 10 * l.interval
	policy.MaxElapsedTime = l.wait

	operation := func() error {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockTimeout
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, err
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}, nil
}
