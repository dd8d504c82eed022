// Package lock 防止多个操作者同时使用同一签名账户发送交易，避免 nonce 冲突。
package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	xerrors "LSRWA-Express/internal/errors"
)

const defaultTTL = 10 * time.Minute

// releaseScript 仅在 key 仍持有本次 token 时删除。
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Release 释放已获取的锁。
type Release func(ctx context.Context) error

// Locker 按 key 分配互斥锁。
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key 返回某网络上签名账户对应的锁 key。
func Key(network string, signer common.Address) string {
	return fmt.Sprintf("lsrwa:%s:%s", network, strings.ToLower(signer.Hex()))
}

// Config 选择锁的实现。
type Config struct {
	Driver   string
	TTL      time.Duration
	Address  string
	Password string
	DB       int
}

// New 根据 cfg.Driver 返回对应的锁实现。
func New(ctx context.Context, cfg Config) (Locker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return NopLocker{}, nil
	case "redis":
		locker, err := NewRedisLocker(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return locker, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("未知的锁驱动: %s", cfg.Driver))
	}
}

// NopLocker 总是授予锁。
type NopLocker struct{}

// Acquire 实现 Locker。
func (NopLocker) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Close() error
}

// RedisLocker 使用 SET NX PX 加锁，释放时先比较 token 再删除。
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisLocker 连接 Redis 并检查连通性。
func NewRedisLocker(ctx context.Context, cfg Config) (*RedisLocker, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return newRedisLocker(client, cfg.TTL), nil
}

func newRedisLocker(client redisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire 实现 Locker。锁已被占用时返回 LOCK_HELD 错误。
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取签名锁失败")
	}
	if !ok {
		return nil, xerrors.New(xerrors.CodeLockHeld,
			fmt.Sprintf("签名锁 %s 已被其他操作占用", key),
			xerrors.WithMetadata("lock_key", key))
	}
	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "释放签名锁失败")
		}
		return nil
	}, nil
}

// Close 关闭 Redis 连接。
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
