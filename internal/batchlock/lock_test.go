package batchlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, nil), mr
}

func TestAcquireExcludesSecondHolder(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	lease, err := lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	lease.Release(ctx)

	lease2, err := lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	lease2.Release(ctx)
}

func TestReleaseKeepsSuccessorLease(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	lease, err := lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	// Simulate TTL expiry and a second process taking over.
	mr.FastForward(2 * time.Minute)
	lease2, err := lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	// Releasing the stale lease must not clear the successor's lock.
	lease.Release(ctx)
	_, err = lock.Acquire(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	lease2.Release(ctx)
}
