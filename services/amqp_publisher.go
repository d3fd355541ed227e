package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"livereport-service/logger"
	"livereport-service/pkg/models"
)

// AMQPPublisher 将比赛更新发布到 AMQP topic exchange，routing key 为
// <type>.<match_id>，下游按事件类型订阅。实现 UpdateBroker 接口。
type AMQPPublisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewAMQPPublisher 创建并连接 AMQP 发布器
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:      url,
		exchange: exchange,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	logger.Printf("[AMQPPublisher] ✅ Connected, publishing to exchange %s", exchange)
	return p, nil
}

// connect 建立连接并声明 exchange
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

// Publish 实现 UpdateBroker 接口。连接断开时重连一次，仍失败则丢弃这条
// 更新并返回错误，不重试不阻塞。
func (p *AMQPPublisher) Publish(update *models.MatchUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	routingKey := fmt.Sprintf("%s.%s", update.Type, update.MatchID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	if err := p.publishLocked(routingKey, body); err != nil {
		logger.Printf("[AMQPPublisher] ⚠️ Publish failed, reconnecting: %v", err)
		if err := p.reconnectLocked(); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
		if err := p.publishLocked(routingKey, body); err != nil {
			return fmt.Errorf("publish after reconnect: %w", err)
		}
	}

	return nil
}

func (p *AMQPPublisher) publishLocked(routingKey string, body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("channel not open")
	}
	return p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) reconnectLocked() error {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return p.connect()
}

// Close 实现 UpdateBroker 接口
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}

	logger.Println("[AMQPPublisher] Connection closed.")
	return nil
}
