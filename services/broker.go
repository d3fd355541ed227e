package services

import (
	"sync"

	"livereport-service/logger"
	"livereport-service/pkg/models"
)

// UpdateBroker 定义了比赛更新对外扇出的抽象接口。发布路径不等待消费者，
// 任何实现都不允许阻塞轮询循环。
type UpdateBroker interface {
	// Publish 广播一条比赛更新
	Publish(update *models.MatchUpdate) error
	// Close 关闭 Broker 连接
	Close() error
}

// InMemoryBroker 是 UpdateBroker 的内存实现，进程内订阅者（WebSocket Hub）
// 通过 Subscribe 拿到自己的更新通道。
type InMemoryBroker struct {
	subscribers []chan *models.MatchUpdate
	mu          sync.RWMutex
	closed      bool
}

// NewInMemoryBroker 创建 InMemoryBroker 实例
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{}
}

// Subscribe 注册一个订阅者并返回其更新通道
func (b *InMemoryBroker) Subscribe() <-chan *models.MatchUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.MatchUpdate, 256)
	b.subscribers = append(b.subscribers, ch)

	logger.Printf("[InMemoryBroker] Subscriber added. Total subscribers: %d", len(b.subscribers))
	return ch
}

// Publish 实现 UpdateBroker 接口。订阅者通道满时丢弃该订阅者的这条更新，
// 不回压发布方。
func (b *InMemoryBroker) Publish(update *models.MatchUpdate) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- update:
		default:
			logger.Printf("[InMemoryBroker] ⚠️ Subscriber channel full. Update for match %s dropped.", update.MatchID)
		}
	}
	return nil
}

// Close 实现 UpdateBroker 接口
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil

	logger.Println("[InMemoryBroker] Closed all channels.")
	return nil
}

// FanoutBroker 将一条更新同时交给多个下游 Broker
type FanoutBroker struct {
	brokers []UpdateBroker
}

// NewFanoutBroker 组合多个 Broker 为一个
func NewFanoutBroker(brokers ...UpdateBroker) *FanoutBroker {
	return &FanoutBroker{brokers: brokers}
}

// Publish 实现 UpdateBroker 接口，单个下游失败不影响其他下游
func (f *FanoutBroker) Publish(update *models.MatchUpdate) error {
	for _, b := range f.brokers {
		if err := b.Publish(update); err != nil {
			logger.Errorf("[FanoutBroker] ❌ Downstream publish failed for match %s: %v", update.MatchID, err)
		}
	}
	return nil
}

// Close 实现 UpdateBroker 接口
func (f *FanoutBroker) Close() error {
	for _, b := range f.brokers {
		b.Close()
	}
	return nil
}
