package events

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPublisherClosed 表示发布器已关闭。
	ErrPublisherClosed = errors.New("events: 发布器已关闭")
	// ErrBufferFull 表示缓冲区已满，事件被丢弃。
	ErrBufferFull = errors.New("events: 缓冲区已满")
)

// MemoryPublisher 将事件缓存在 channel 中，供进程内的消费者读取。
type MemoryPublisher struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewMemoryPublisher 创建指定缓冲大小的发布器。
func NewMemoryPublisher(buffer int) *MemoryPublisher {
	if buffer <= 0 {
		buffer = 16
	}
	return &MemoryPublisher{ch: make(chan Event, buffer)}
}

// Publish 实现 Publisher。缓冲区已满时立即返回 ErrBufferFull，不会阻塞。
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.ch <- Prepare(event):
		return nil
	default:
		return ErrBufferFull
	}
}

// Events 暴露缓冲中的事件。
func (p *MemoryPublisher) Events() <-chan Event {
	return p.ch
}

// Drain 非阻塞地取出当前缓冲中的全部事件。
func (p *MemoryPublisher) Drain() []Event {
	var out []Event
	for {
		select {
		case event, ok := <-p.ch:
			if !ok {
				return out
			}
			out = append(out, event)
		default:
			return out
		}
	}
}

// Close 实现 Publisher。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}
