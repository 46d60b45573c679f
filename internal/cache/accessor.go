package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Accessor 缓存旁路访问器：读穿透（带防击穿锁）+ 写失效
// 缓存只是延迟优化，任何缓存侧错误都降级为回源读，决不影响正确性
type Accessor[T any] struct {
	redisClient *redis.Client
	locks       *LockManager
	ttl         time.Duration
	jitter      time.Duration
	lockWait    time.Duration
	logger      *zap.Logger
}

// NewAccessor 创建缓存旁路访问器
func NewAccessor[T any](
	redisClient *redis.Client,
	locks *LockManager,
	ttl, jitter, lockWait time.Duration,
	logger *zap.Logger,
) *Accessor[T] {
	return &Accessor[T]{
		redisClient: redisClient,
		locks:       locks,
		ttl:         ttl,
		jitter:      jitter,
		lockWait:    lockWait,
		logger:      logger,
	}
}

// Get 读穿透查询：
// 1. 查缓存，命中直接返回
// 2. 未命中则获取键级锁（有界等待），拿到锁后双重检查缓存，仍未命中才回源；
//    回源成功写入带抖动TTL的缓存（NotFound 不缓存，原样透传）
// 3. 锁等待超时则直接回源读取（接受有界的重复回源，换取有界延迟）
func (a *Accessor[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if value, ok := a.readCache(ctx, key); ok {
		return value, nil
	}

	lock, err := a.locks.Acquire(ctx, lockKey(key), a.lockWait)
	if err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		// 锁等待超时（或锁服务故障）：直接回源，不写缓存
		a.logger.Warn("Lock acquisition failed, falling back to direct store read",
			zap.String("key", key),
			zap.Error(err),
		)
		return load(ctx)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			a.logger.Warn("Failed to release lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}()

	// 双重检查：等锁期间其他协程可能已写入缓存
	if value, ok := a.readCache(ctx, key); ok {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}

	a.writeCache(ctx, key, value)
	return value, nil
}

// Put 写入缓存（创建路径使用：调用方已完成数据库写入）
func (a *Accessor[T]) Put(ctx context.Context, key string, value T) {
	a.writeCache(ctx, key, value)
}

// Invalidate 删除缓存条目（幂等，键不存在不报错）
func (a *Accessor[T]) Invalidate(ctx context.Context, key string) {
	if err := a.redisClient.Del(ctx, key).Err(); err != nil {
		a.logger.Warn("Failed to invalidate cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Exists 检查存在性：缓存键存在即为真（无需反序列化），否则回源探测
func (a *Accessor[T]) Exists(ctx context.Context, key string, probe func(ctx context.Context) (bool, error)) (bool, error) {
	count, err := a.redisClient.Exists(ctx, key).Result()
	if err != nil {
		a.logger.Warn("Failed to check cache existence, falling back to store",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if count > 0 {
		return true, nil
	}

	return probe(ctx)
}

func (a *Accessor[T]) readCache(ctx context.Context, key string) (T, bool) {
	var zero T

	val, err := a.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			a.logger.Warn("Cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return zero, false
	}

	var value T
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		a.logger.Warn("Failed to unmarshal cached value, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return zero, false
	}

	return value, true
}

func (a *Accessor[T]) writeCache(ctx context.Context, key string, value T) {
	jsonData, err := json.Marshal(value)
	if err != nil {
		a.logger.Warn("Failed to marshal value for cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	if err := a.redisClient.Set(ctx, key, jsonData, a.randomTTL()).Err(); err != nil {
		a.logger.Warn("Cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// randomTTL 带随机抖动的过期时间，防止缓存雪崩（如 60 ± 3秒）
func (a *Accessor[T]) randomTTL() time.Duration {
	if a.jitter <= 0 {
		return a.ttl
	}
	offset := time.Duration(rand.Int63n(int64(2*a.jitter))) - a.jitter
	return a.ttl + offset
}

func lockKey(key string) string {
	return "lock:" + key
}
