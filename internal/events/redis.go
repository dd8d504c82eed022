package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "lsrwa:events"

// RedisConfig 描述接收事件的 Redis list。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher 将 JSON 编码的事件推入 Redis list。
type RedisPublisher struct {
	client listPusher
	key    string
}

// NewRedisPublisher 连接 Redis 并检查连通性。
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisPublisher(client, cfg.Key), nil
}

func newRedisPublisher(client listPusher, key string) *RedisPublisher {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisPublisher{client: client, key: key}
}

// Publish 实现 Publisher。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.client.LPush(ctx, p.key, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 实现 Publisher。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
