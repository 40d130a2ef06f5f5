// Package lock provides a single-flight distributed lock over Redis so two
// ingress workers never admit the same (session, flow) concurrently.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttl = 30 * time.Second

// Locker guards flow admission with a Redis-backed mutex keyed per session+flow.
type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Key returns the canonical lock key for a (session, flow) pair.
func Key(sessionID, flowID string) string {
	return fmt.Sprintf("flow:lock:%s:%s", sessionID, flowID)
}

// TryAcquire attempts a non-blocking SET NX EX and reports whether it won.
func (l *Locker) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release drops the lock unconditionally. Safe to call even if the lock
// already expired or was never acquired.
func (l *Locker) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, key).Err()
}
