package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/textutil"
	"go.uber.org/zap"
)

// PostgresStore is the PostgreSQL implementation of the hash registry
// and the audit log
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach PostgreSQL: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS file_hashes (
			id BIGSERIAL PRIMARY KEY,
			file_hash VARCHAR(64) NOT NULL UNIQUE,
			label TEXT,
			reason TEXT,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			scope_id TEXT,
			channel_id TEXT,
			message_id TEXT,
			author_id TEXT,
			author_name TEXT,
			content TEXT,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			scope_id TEXT,
			channel_id TEXT,
			message_id TEXT,
			author_id TEXT,
			event_type TEXT,
			detail TEXT,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id BIGSERIAL PRIMARY KEY,
			scope_id TEXT,
			channel_id TEXT,
			message_id TEXT,
			author_id TEXT,
			target_type TEXT,
			target_value TEXT,
			is_malicious BOOLEAN,
			reason TEXT,
			created_at TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Lookup returns the standing block reason for a content hash
func (s *PostgresStore) Lookup(ctx context.Context, hash string) (string, bool, error) {
	var reason string
	err := s.db.QueryRowContext(ctx,
		`SELECT reason FROM file_hashes WHERE file_hash = $1`, hash).Scan(&reason)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hash lookup failed: %w", err)
	}
	return reason, true, nil
}

// Register stores a block record for a hash; ON CONFLICT DO NOTHING
// makes concurrent duplicate registrations safe no-ops
func (s *PostgresStore) Register(ctx context.Context, hash, label, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_hashes (file_hash, label, reason, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (file_hash) DO NOTHING`,
		hash, label, reason, now())
	if err != nil {
		return fmt.Errorf("hash registration failed: %w", err)
	}
	return nil
}

// LogMessage appends one inbound message to the audit trail
func (s *PostgresStore) LogMessage(ctx context.Context, msg *core.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (scope_id, channel_id, message_id, author_id, author_name, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ScopeID, msg.ChannelID, msg.MessageID, msg.AuthorID, msg.AuthorName,
		textutil.Truncate(msg.Content, maxAuditContent), now())
	if err != nil {
		return fmt.Errorf("message log failed: %w", err)
	}
	return nil
}

// LogScan appends one scan verdict to the audit trail
func (s *PostgresStore) LogScan(ctx context.Context, msg *core.Message, v core.ScanVerdict) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (scope_id, channel_id, message_id, author_id, target_type, target_value, is_malicious, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ScopeID, msg.ChannelID, msg.MessageID, msg.AuthorID,
		string(v.TargetType), v.Target, v.Malicious, v.Reason(), now())
	if err != nil {
		return fmt.Errorf("scan log failed: %w", err)
	}
	return nil
}

// LogEvent appends one pipeline event to the audit trail
func (s *PostgresStore) LogEvent(ctx context.Context, msg *core.Message, eventType, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (scope_id, channel_id, message_id, author_id, event_type, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ScopeID, msg.ChannelID, msg.MessageID, msg.AuthorID, eventType, detail, now())
	if err != nil {
		return fmt.Errorf("event log failed: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
