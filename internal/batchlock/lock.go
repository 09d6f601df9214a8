// Package batchlock serializes the batch writers (external sync and the
// reconciliation pass) with a Redis lease so the two never interleave writes.
package batchlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// ErrHeld is returned by Acquire when another batch process holds the lock.
var ErrHeld = errors.New("batchlock: already held")

const defaultKey = "kinebilan:batch:lock"

// Lock is a Redis-backed mutex lease. The value stored under the key is a
// per-acquisition token so Release never clears a lease taken over by
// someone else after our TTL expired.
type Lock struct {
	client *redis.Client
	key    string
	logger *logging.Logger
}

// New creates a batch lock on the given Redis client.
func New(client *redis.Client, logger *logging.Logger) *Lock {
	if logger == nil {
		logger = logging.Default()
	}
	return &Lock{client: client, key: defaultKey, logger: logger}
}

// Lease is a held lock. Release it when the batch finishes.
type Lease struct {
	lock  *Lock
	token string
}

// Acquire takes the lock for at most ttl. Returns ErrHeld when another
// process has it.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("batchlock: acquire: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{lock: l, token: token}, nil
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Release gives the lock back. A lease that already expired is released
// silently; the warning log covers the case where someone else took over.
func (le *Lease) Release(ctx context.Context) {
	n, err := releaseScript.Run(ctx, le.lock.client, []string{le.lock.key}, le.token).Int()
	if err != nil {
		le.lock.logger.Error("batch lock release failed", "error", err)
		return
	}
	if n == 0 {
		le.lock.logger.Warn("batch lock lease expired before release")
	}
}
