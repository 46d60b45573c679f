package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestLockAcquireAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	manager := NewLockManager(client, 10*time.Second, zap.NewNop())
	ctx := context.Background()

	lock, err := manager.Acquire(ctx, "lock:test", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:test"))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("lock:test"))
}

func TestLockContentionTimesOut(t *testing.T) {
	_, client := newTestRedis(t)
	manager := NewLockManager(client, 10*time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "lock:busy", time.Second)
	require.NoError(t, err)
	defer first.Release(ctx)

	_, err = manager.Acquire(ctx, "lock:busy", 120*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestLockReleasedLockCanBeReacquired(t *testing.T) {
	_, client := newTestRedis(t)
	manager := NewLockManager(client, 10*time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "lock:turn", time.Second)
	require.NoError(t, err)
	require.NoError(t, first.Release(ctx))

	second, err := manager.Acquire(ctx, "lock:turn", time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestLockLeaseExpiresServerSide(t *testing.T) {
	mr, client := newTestRedis(t)
	manager := NewLockManager(client, 2*time.Second, zap.NewNop())
	ctx := context.Background()

	_, err := manager.Acquire(ctx, "lock:crashed", time.Second)
	require.NoError(t, err)

	// 模拟持有者崩溃后租约到期
	mr.FastForward(3 * time.Second)

	lock, err := manager.Acquire(ctx, "lock:crashed", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestLockReleaseIgnoresForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	manager := NewLockManager(client, 2*time.Second, zap.NewNop())
	ctx := context.Background()

	lock, err := manager.Acquire(ctx, "lock:stale", time.Second)
	require.NoError(t, err)

	// 租约到期后锁被他人持有，过期持有者的释放必须是空操作
	mr.FastForward(3 * time.Second)
	require.NoError(t, mr.Set("lock:stale", "other-holder-token"))

	require.NoError(t, lock.Release(ctx))
	got, err := mr.Get("lock:stale")
	require.NoError(t, err)
	assert.Equal(t, "other-holder-token", got)
}

func TestLockAcquireCanceledContext(t *testing.T) {
	_, client := newTestRedis(t)
	manager := NewLockManager(client, 10*time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "lock:cancel", time.Second)
	require.NoError(t, err)
	defer first.Release(ctx)

	cancelCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	_, err = manager.Acquire(cancelCtx, "lock:cancel", 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
