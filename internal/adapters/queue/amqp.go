package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mikey/chat-sentinel/internal/core"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher implements the offload-queue port over RabbitMQ. Tasks are
// published persistent to a durable queue so an accepted task survives a
// broker restart (at-least-once).
type Publisher struct {
	url       string
	queueName string
	logger    *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a publisher; the connection is established lazily
// on first publish and re-established after broker failures
func NewPublisher(url, queueName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		url:       url,
		queueName: queueName,
		logger:    logger,
	}
}

// Publish sends one task to the deep-scan queue
func (p *Publisher) Publish(ctx context.Context, task core.OffloadTask) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

// channel returns a live channel, dialing the broker if needed
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info("Connected to offload broker", zap.String("queue", p.queueName))
	return ch, nil
}

// reset drops the cached connection so the next publish redials
func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close shuts the broker connection down
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// Consumer reads deep-scan tasks from the durable queue
type Consumer struct {
	url       string
	queueName string
	logger    *zap.Logger
}

// NewConsumer creates a consumer for the given broker and queue
func NewConsumer(url, queueName string, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:       url,
		queueName: queueName,
		logger:    logger,
	}
}

// Consume delivers each queued task body to handle until ctx is
// cancelled. A handler error leaves the delivery unacknowledged for
// redelivery; success acknowledges it.
func (c *Consumer) Consume(ctx context.Context, handle func(ctx context.Context, body []byte) error) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	deliveries, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for offloaded tasks", zap.String("queue", c.queueName))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				c.logger.Warn("Task handling failed, requeueing", zap.Error(err))
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}
}
