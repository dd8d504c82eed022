// Package events 将部署生命周期事件广播给其他系统。
// 发布失败只记录日志，不影响命令结果。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "LSRWA-Express/internal/errors"
)

// Type 表示事件类型。
type Type string

const (
	ContractDeployed     Type = "contract_deployed"
	OwnershipTransferred Type = "ownership_transferred"
	ContractVerified     Type = "contract_verified"
	FutureExecuted       Type = "future_executed"
)

// Event 描述一次部署生命周期通知。
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Network    string            `json:"network"`
	ChainID    int64             `json:"chain_id"`
	Contract   string            `json:"contract,omitempty"`
	Address    string            `json:"address,omitempty"`
	TxHash     string            `json:"tx_hash,omitempty"`
	Module     string            `json:"module,omitempty"`
	FutureID   string            `json:"future_id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Config 选择并配置事件发布器。
type Config struct {
	Driver   string
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

// New 根据 cfg.Driver 构造事件发布器。
func New(ctx context.Context, cfg Config) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return NopPublisher{}, nil
	case "memory":
		return NewMemoryPublisher(64), nil
	case "redis":
		pub, err := NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case "rabbitmq":
		pub, err := NewRabbitMQPublisher(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("未知的事件驱动: %s", cfg.Driver))
	}
}

// Prepare 在缺失时补全事件 ID 与时间戳。
func Prepare(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(Prepare(event))
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return payload, nil
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

// Publish 实现 Publisher。
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher。
func (NopPublisher) Close() error { return nil }
