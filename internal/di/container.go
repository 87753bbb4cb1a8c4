package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/chat-sentinel/internal/adapters/httpapi"
	"github.com/mikey/chat-sentinel/internal/adapters/queue"
	"github.com/mikey/chat-sentinel/internal/config"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/factory"
	"github.com/mikey/chat-sentinel/internal/logging"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewRegistryFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewQueueFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewScannerFactory); err != nil {
		return nil, err
	}

	// Register the hash registry / audit store
	if err := container.Provide(func(f *factory.RegistryFactory) (factory.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(store factory.Store) core.HashRegistry {
		return store
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.RegistryFactory, store factory.Store) core.AuditLog {
		if !f.IsAuditEnabled() {
			return nil
		}
		return store
	}); err != nil {
		return nil, err
	}

	// Register the offload queue publisher
	if err := container.Provide(func(f *factory.QueueFactory) *queue.Publisher {
		return f.CreatePublisher()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(p *queue.Publisher) core.OffloadQueue {
		if p == nil {
			return nil
		}
		return p
	}); err != nil {
		return nil, err
	}

	// Register scanners
	if err := container.Provide(func(f *factory.ScannerFactory) (core.URLScanner, error) {
		s, err := f.CreateURLScanner()
		if s == nil {
			return nil, err
		}
		return s, err
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ScannerFactory, registry core.HashRegistry, q core.OffloadQueue) (core.FileScanner, error) {
		s, err := f.CreateFileScanner(registry, q)
		if s == nil {
			return nil, err
		}
		return s, err
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ScannerFactory) (core.SpamChecker, error) {
		d, err := f.CreateSpamDetector()
		if d == nil {
			return nil, err
		}
		return d, err
	}); err != nil {
		return nil, err
	}

	// Register the pipeline
	if err := container.Provide(core.NewPipeline); err != nil {
		return nil, err
	}

	// Register the HTTP boundary
	if err := container.Provide(func(cfg *config.Config, pipeline *core.Pipeline, logger *zap.Logger) *httpapi.Server {
		return httpapi.NewServer(cfg.GetString("server.listen_address"), pipeline, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
