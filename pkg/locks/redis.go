package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTTL  = 30 * time.Second
	retryPeriod = 25 * time.Millisecond
)

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// RedisLocker coordinates holders across processes using SETNX + TTL.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client redisStore
	wait   time.Duration
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed Locker.
func NewRedisLocker(client redisStore, wait, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for locker")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, wait: wait, ttl: ttl}, nil
}

func (r *RedisLocker) Lock(ctx context.Context, keys ...string) (Lease, error) {
	return lockAll(ctx, r, r.wait, keys)
}

func (r *RedisLocker) acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	redisKey := r.client.LockKey(key)
	owner := uuid.NewString()

	ticker := time.NewTicker(retryPeriod)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, owner, r.ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("setnx %s: %w", redisKey, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if _, err := r.client.CompareAndDelete(ctx, redisKey, owner); err != nil {
					return fmt.Errorf("release %s: %w", redisKey, err)
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
