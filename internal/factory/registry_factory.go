package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/chat-sentinel/internal/adapters/registry"
	"github.com/mikey/chat-sentinel/internal/config"
	"github.com/mikey/chat-sentinel/internal/core"
	"go.uber.org/zap"
)

// Store is the persistence surface the pipeline needs: the content-hash
// registry plus the append-only audit log, with a lifecycle hook.
type Store interface {
	core.HashRegistry
	core.AuditLog
	Close() error
}

// RegistryFactory creates hash-registry stores based on configuration
type RegistryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRegistryFactory creates a new registry factory
func NewRegistryFactory(cfg *config.Config, logger *zap.Logger) *RegistryFactory {
	return &RegistryFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a store based on the configuration
func (f *RegistryFactory) CreateStore() (Store, error) {
	registryType := f.cfg.GetString("registry.type")

	switch registryType {
	case "sqlite":
		sqlitePath := f.cfg.GetString("registry.sqlite_path")
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return registry.NewSQLiteStore(sqlitePath, f.logger)
	case "mysql":
		return registry.NewMySQLStore(f.cfg.GetString("registry.mysql_dsn"), f.logger)
	case "postgres":
		return registry.NewPostgresStore(f.cfg.GetString("registry.postgres_dsn"), f.logger)
	default:
		return nil, fmt.Errorf("unsupported registry type: %s", registryType)
	}
}

// IsAuditEnabled returns whether audit logging is enabled
func (f *RegistryFactory) IsAuditEnabled() bool {
	return f.cfg.GetBool("registry.audit_enabled")
}
