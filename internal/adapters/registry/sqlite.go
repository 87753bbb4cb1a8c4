package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/textutil"
	"go.uber.org/zap"
)

// maxAuditContent caps stored message content so the audit log does not
// bloat on pathological inputs
const maxAuditContent = 2000

// SQLiteStore is the SQLite implementation of the hash registry and the
// audit log
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed initializes) the SQLite store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE IF NOT EXISTS file_hashes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_hash TEXT UNIQUE NOT NULL,
			label TEXT,
			reason TEXT,
			created_at TEXT
		);
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_id TEXT,
			channel_id TEXT,
			message_id TEXT,
			author_id TEXT,
			author_name TEXT,
			content TEXT,
			created_at TEXT
		);
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_id TEXT,
			channel_id TEXT,
			message_id TEXT,
			author_id TEXT,
			event_type TEXT,
			detail TEXT,
			created_at TEXT
		);
		CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_id TEXT,
			channel_id TEXT,
			message_id TEXT,
			author_id TEXT,
			target_type TEXT,
			target_value TEXT,
			is_malicious INTEGER,
			reason TEXT,
			created_at TEXT
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Lookup returns the standing block reason for a content hash
func (s *SQLiteStore) Lookup(ctx context.Context, hash string) (string, bool, error) {
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

// Register stores a block record for a hash; duplicate inserts are
// silent no-ops per the unique constraint
func (s *SQLiteStore) Register(ctx context.Context, hash, label, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_hashes (file_hash, label, reason, created_at) VALUES (?, ?, ?, ?)`,
		hash, label, reason, now())
	if err != nil {
		return fmt.Errorf("hash registration failed: %w", err)
	}
	return nil
}

// LogMessage appends one inbound message to the audit trail
func (s *SQLiteStore) LogMessage(ctx context.Context, msg *core.Message) error {
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
func (s *SQLiteStore) LogScan(ctx context.Context, msg *core.Message, v core.ScanVerdict) error {
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
func (s *SQLiteStore) LogEvent(ctx context.Context, msg *core.Message, eventType, detail string) error {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
