package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockTimeout 在等待窗口内未能获取锁
var ErrLockTimeout = errors.New("lock acquisition timed out")

// 获取锁失败后的重试间隔
const lockRetryInterval = 50 * time.Millisecond

// 释放锁：仅当持有者令牌匹配时删除（租约到期后被他人持有的锁不受影响）
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// LockManager 基于Redis的命名互斥锁（带租约，持有者崩溃后服务端自动过期）
type LockManager struct {
	redisClient *redis.Client
	lease       time.Duration
	logger      *zap.Logger
}

// NewLockManager 创建锁管理器
func NewLockManager(redisClient *redis.Client, lease time.Duration, logger *zap.Logger) *LockManager {
	return &LockManager{
		redisClient: redisClient,
		lease:       lease,
		logger:      logger,
	}
}

// Lock 已获取的锁句柄
type Lock struct {
	manager *LockManager
	key     string
	token   string
}

// Acquire 获取命名锁，在 wait 时间内轮询重试；超时返回 ErrLockTimeout
func (m *LockManager) Acquire(ctx context.Context, name string, wait time.Duration) (*Lock, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(wait)

	for {
		ok, err := m.redisClient.SetNX(ctx, name, token, m.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			return &Lock{manager: m, key: name, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", name, ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release 释放锁（令牌不匹配时为空操作，租约过期后安全）
func (l *Lock) Release(ctx context.Context) error {
	err := l.manager.redisClient.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
