package factory

import (
	"github.com/mikey/chat-sentinel/internal/adapters/queue"
	"github.com/mikey/chat-sentinel/internal/config"
	"go.uber.org/zap"
)

// QueueFactory creates the offload-queue publisher based on configuration
type QueueFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewQueueFactory creates a new queue factory
func NewQueueFactory(cfg *config.Config, logger *zap.Logger) *QueueFactory {
	return &QueueFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePublisher creates the AMQP publisher, or nil when offloading is
// disabled
func (f *QueueFactory) CreatePublisher() *queue.Publisher {
	if !f.cfg.GetBool("queue.enabled") {
		return nil
	}
	return queue.NewPublisher(
		f.cfg.GetString("queue.url"),
		f.cfg.GetString("queue.name"),
		f.logger,
	)
}

// CreateConsumer creates the AMQP consumer used by the deep-scan worker
func (f *QueueFactory) CreateConsumer() *queue.Consumer {
	return queue.NewConsumer(
		f.cfg.GetString("queue.url"),
		f.cfg.GetString("queue.name"),
		f.logger,
	)
}
