package migrationlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker, err := NewRedisLocker(client, WithLeaseTTL(3*time.Second), WithKeyPrefix("test:lock"))
	require.NoError(t, err)
	return locker, mr
}

func TestNewRedisLockerRequiresClient(t *testing.T) {
	_, err := NewRedisLocker(nil)
	require.Error(t, err)
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	lease, ok, err := locker.TryAcquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("test:lock:7"))

	_, ok, err = locker.TryAcquire(ctx, 7)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, lease.Release(ctx))
	require.False(t, mr.Exists("test:lock:7"))
	require.NoError(t, lease.Release(ctx))

	again, ok, err := locker.TryAcquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLockerExpiredLeaseIsReclaimable(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	stale, ok, err := locker.TryAcquire(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(4 * time.Second)
	require.False(t, mr.Exists("test:lock:9"))

	fresh, ok, err := locker.TryAcquire(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, stale.Release(ctx), ErrLockLost)
	require.True(t, mr.Exists("test:lock:9"), "stale holder must not delete the new lease")

	require.NoError(t, fresh.Release(ctx))
}

func TestRedisLockerWithManager(t *testing.T) {
	locker, mr := newRedisLocker(t)
	mgr, err := NewManager(locker, Config{LockID: 11, Timeout: time.Second, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	acquired, err := mgr.Run(context.Background(), func(context.Context) error {
		require.True(t, mr.Exists("test:lock:11"))
		return nil
	})
	require.NoError(t, err)
	require.True(t, acquired)
	require.False(t, mr.Exists("test:lock:11"))
}
