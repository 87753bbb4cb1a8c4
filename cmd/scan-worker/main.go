package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mikey/chat-sentinel/internal/config"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/factory"
	"github.com/mikey/chat-sentinel/internal/logging"
	"go.uber.org/zap"
)

// The worker drains the offload queue: every task is a file the inline
// scanner already hashed and parked on shared storage. The worker re-runs
// the expensive collaborators without the inline latency budget, records
// any verdict in the hash registry, and always removes the parked file.
func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := factory.NewRegistryFactory(cfg, logger).CreateStore()
	if err != nil {
		logger.Fatal("Failed to open registry store", zap.Error(err))
	}
	defer store.Close()

	scanners := factory.NewScannerFactory(cfg, logger)
	signatures := scanners.CreateSignatureScanner()
	rules := scanners.CreateRuleScanner()
	if signatures == nil && rules == nil {
		logger.Fatal("No scan collaborators enabled, nothing for the worker to do")
	}

	consumer := factory.NewQueueFactory(cfg, logger).CreateConsumer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &worker{
		registry:   store,
		signatures: signatures,
		rules:      rules,
		logger:     logger,
	}
	if err := consumer.Consume(ctx, w.handle); err != nil && ctx.Err() == nil {
		logger.Fatal("Consumer failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

type worker struct {
	registry   core.HashRegistry
	signatures core.SignatureScanner
	rules      core.RuleScanner
	logger     *zap.Logger
}

// handle processes one offloaded task. Scanner failures degrade to no
// signal and the task is still acknowledged; requeueing a task whose
// file is gone would spin forever.
func (w *worker) handle(ctx context.Context, body []byte) error {
	var task core.OffloadTask
	if err := json.Unmarshal(body, &task); err != nil {
		w.logger.Warn("Discarding undecodable task", zap.Error(err))
		return nil
	}
	if task.Type != core.TaskTypeFileScan {
		w.logger.Warn("Discarding task of unknown type", zap.String("type", task.Type))
		return nil
	}

	defer func() {
		if err := os.Remove(task.TmpPath); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("Failed to remove parked file",
				zap.String("path", task.TmpPath), zap.Error(err))
		}
	}()

	var reasons []string
	if w.signatures != nil {
		matched, label, err := w.signatures.Scan(ctx, task.TmpPath)
		if err != nil {
			w.logger.Warn("Signature scan degraded to no signal",
				zap.String("filename", task.Filename), zap.Error(err))
		} else if matched {
			reasons = append(reasons, fmt.Sprintf("ClamAV: %s", label))
		}
	}
	if w.rules != nil {
		names, err := w.rules.Scan(ctx, task.TmpPath)
		if err != nil {
			w.logger.Warn("Rule scan degraded to no signal",
				zap.String("filename", task.Filename), zap.Error(err))
		} else if len(names) > 0 {
			reasons = append(reasons, fmt.Sprintf("YARA: %s", strings.Join(names, ", ")))
		}
	}

	if len(reasons) == 0 {
		w.logger.Info("Deep scan clean", zap.String("filename", task.Filename))
		return nil
	}

	reason := strings.Join(reasons, "; ")
	w.logger.Info("Deep scan flagged file",
		zap.String("filename", task.Filename),
		zap.String("hash", task.ContentHash),
		zap.String("reason", reason))
	if task.ContentHash != "" {
		if err := w.registry.Register(ctx, task.ContentHash, task.Filename, reason); err != nil {
			w.logger.Warn("Failed to register malicious hash",
				zap.String("hash", task.ContentHash), zap.Error(err))
		}
	}
	return nil
}
