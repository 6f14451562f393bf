package autoscaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"intelliscale/pkg/logger"
)

const (
	// 分布式锁相关常量
	autoscalerLockKey   = "autoscaler:global-lock"
	lockTTL             = 30 * time.Second // 锁的 TTL，防止死锁
	lockAcquireTimeout  = 5 * time.Second  // 获取锁的超时时间
	lockExtendInterval  = 10 * time.Second // 锁续期间隔
	maxLockHoldDuration = 2 * time.Minute  // 最大持有锁时间
)

var (
	// only the owner may delete or extend the lock
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock 分布式锁接口
type DistributedLock interface {
	// TryLock 尝试获取锁，不等待
	TryLock(ctx context.Context) (bool, error)

	// Unlock 释放锁
	Unlock(ctx context.Context) error

	// IsHeld 检查是否持有锁
	IsHeld() bool
}

// RedisDistributedLock Redis 分布式锁实现.
// A nil client gives single-instance mode: TryLock always succeeds.
type RedisDistributedLock struct {
	client     *redis.Client
	lockKey    string
	lockValue  string // 唯一标识，防止释放其他实例的锁
	ttl        time.Duration
	isHeld     bool
	acquiredAt time.Time
	stopRenew  chan struct{}
	mu         sync.Mutex
}

// NewRedisDistributedLock 创建 Redis 分布式锁
func NewRedisDistributedLock(client *redis.Client, lockKey string) *RedisDistributedLock {
	return NewRedisDistributedLockWithTTL(client, lockKey, lockTTL)
}

// NewRedisDistributedLockWithTTL 创建指定 TTL 的分布式锁
func NewRedisDistributedLockWithTTL(client *redis.Client, lockKey string, ttl time.Duration) *RedisDistributedLock {
	if lockKey == "" {
		lockKey = autoscalerLockKey
	}
	if ttl <= 0 {
		ttl = lockTTL
	}
	return &RedisDistributedLock{
		client:    client,
		lockKey:   lockKey,
		lockValue: lockKey + "-" + uuid.New().String(),
		ttl:       ttl,
	}
}

// TryLock 尝试获取锁（带超时）
func (l *RedisDistributedLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.isHeld = true
		l.acquiredAt = time.Now()
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.lockKey, l.lockValue, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s already held by another instance", l.lockKey)
		return false, nil
	}

	l.mu.Lock()
	l.isHeld = true
	l.acquiredAt = time.Now()
	// a fresh channel per acquisition so TryLock/Unlock can cycle
	stop := make(chan struct{})
	l.stopRenew = stop
	l.mu.Unlock()

	go l.renewLock(ctx, stop)

	logger.DebugCtx(ctx, "lock %s acquired", l.lockKey)
	return true, nil
}

// Unlock 释放锁
func (l *RedisDistributedLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	wasHeld := l.isHeld
	l.isHeld = false
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
	l.mu.Unlock()

	if l.client == nil || !wasHeld {
		return nil
	}

	result, err := releaseScript.Run(ctx, l.client, []string{l.lockKey}, l.lockValue).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 1 {
		logger.DebugCtx(ctx, "lock %s released", l.lockKey)
	} else {
		logger.WarnCtx(ctx, "lock %s was already released or held by another instance", l.lockKey)
	}
	return nil
}

// IsHeld 检查是否持有锁
func (l *RedisDistributedLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isHeld
}

// renewLock 自动续期锁（后台协程）
func (l *RedisDistributedLock) renewLock(ctx context.Context, stop <-chan struct{}) {
	interval := lockExtendInterval
	if l.ttl/3 < interval {
		interval = l.ttl / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			holdDuration := time.Since(l.acquiredAt)
			l.mu.Unlock()

			// 持有过久则放弃续期，让 TTL 到期
			if holdDuration > maxLockHoldDuration {
				logger.WarnCtx(ctx, "lock %s held for too long (%.0f seconds), stop renewing", l.lockKey, holdDuration.Seconds())
				l.markLost()
				return
			}

			result, err := renewScript.Run(ctx, l.client, []string{l.lockKey}, l.lockValue, l.ttl.Milliseconds()).Int64()
			if err != nil {
				logger.WarnCtx(ctx, "failed to renew lock %s: %v", l.lockKey, err)
				l.markLost()
				return
			}
			if result == 0 {
				logger.WarnCtx(ctx, "lock %s renewal failed, lock lost", l.lockKey)
				l.markLost()
				return
			}
		}
	}
}

func (l *RedisDistributedLock) markLost() {
	l.mu.Lock()
	l.isHeld = false
	l.mu.Unlock()
}
