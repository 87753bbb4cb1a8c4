package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey/chat-sentinel/internal/adapters/httpapi"
	"github.com/mikey/chat-sentinel/internal/adapters/queue"
	"github.com/mikey/chat-sentinel/internal/di"
	"github.com/mikey/chat-sentinel/internal/factory"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	server *httpapi.Server,
	store factory.Store,
	publisher *queue.Publisher,
) error {
	defer logger.Sync()

	// Start the HTTP boundary
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Drain in-flight scan requests
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Failed to stop server", zap.Error(err))
	}

	// Close any resources that need closing
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close queue publisher", zap.Error(err))
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close registry store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
