package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/textutil"
	"go.uber.org/zap"
)

// MySQLStore is the MySQL implementation of the hash registry and the
// audit log
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL and ensures the schema exists
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach MySQL: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS file_hashes (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			file_hash VARCHAR(64) NOT NULL UNIQUE,
			label VARCHAR(255),
			reason TEXT,
			created_at VARCHAR(40)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			scope_id VARCHAR(64),
			channel_id VARCHAR(64),
			message_id VARCHAR(64),
			author_id VARCHAR(64),
			author_name VARCHAR(255),
			content TEXT,
			created_at VARCHAR(40)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			scope_id VARCHAR(64),
			channel_id VARCHAR(64),
			message_id VARCHAR(64),
			author_id VARCHAR(64),
			event_type VARCHAR(64),
			detail TEXT,
			created_at VARCHAR(40)
		)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			scope_id VARCHAR(64),
			channel_id VARCHAR(64),
			message_id VARCHAR(64),
			author_id VARCHAR(64),
			target_type VARCHAR(16),
			target_value TEXT,
			is_malicious TINYINT,
			reason TEXT,
			created_at VARCHAR(40)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// Lookup returns the standing block reason for a content hash
func (s *MySQLStore) Lookup(ctx context.Context, hash string) (string, bool, error) {
	var reason string
	err := s.db.QueryRowContext(ctx,
		`SELECT reason FROM file_hashes WHERE file_hash = ?`, hash).Scan(&reason)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hash lookup failed: %w", err)
	}
	return reason, true, nil
}

// Register stores a block record for a hash; INSERT IGNORE makes
// concurrent duplicate registrations safe no-ops
func (s *MySQLStore) Register(ctx context.Context, hash, label, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO file_hashes (file_hash, label, reason, created_at) VALUES (?, ?, ?, ?)`,
		hash, label, reason, now())
	if err != nil {
		return fmt.Errorf("hash registration failed: %w", err)
	}
	return nil
}

// LogMessage appends one inbound message to the audit trail
func (s *MySQLStore) LogMessage(ctx context.Context, msg *core.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (scope_id, channel_id, message_id, author_id, author_name, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ScopeID, msg.ChannelID, msg.MessageID, msg.AuthorID, msg.AuthorName,
		textutil.Truncate(msg.Content, maxAuditContent), now())
	if err != nil {
		return fmt.Errorf("message log failed: %w", err)
	}
	return nil
}

// LogScan appends one scan verdict to the audit trail
func (s *MySQLStore) LogScan(ctx context.Context, msg *core.Message, v core.ScanVerdict) error {
	malicious := 0
	if v.Malicious {
		malicious = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (scope_id, channel_id, message_id, author_id, target_type, target_value, is_malicious, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ScopeID, msg.ChannelID, msg.MessageID, msg.AuthorID,
		string(v.TargetType), v.Target, malicious, v.Reason(), now())
	if err != nil {
		return fmt.Errorf("scan log failed: %w", err)
	}
	return nil
}

// LogEvent appends one pipeline event to the audit trail
func (s *MySQLStore) LogEvent(ctx context.Context, msg *core.Message, eventType, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (scope_id, channel_id, message_id, author_id, event_type, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ScopeID, msg.ChannelID, msg.MessageID, msg.AuthorID, eventType, detail, now())
	if err != nil {
		return fmt.Errorf("event log failed: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
