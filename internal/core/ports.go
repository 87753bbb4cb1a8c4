package core

import (
	"context"
	"time"
)

// URLScanner produces one verdict per URL extracted from message text
type URLScanner interface {
	// ScanContent extracts URLs from untrusted chat text and scans them.
	// The returned slice follows first-seen URL order.
	ScanContent(ctx context.Context, content string) []ScanVerdict
}

// FileScanner produces one verdict per attachment
type FileScanner interface {
	// ScanAttachments scans attachments concurrently, one verdict per
	// input in input order.
	ScanAttachments(ctx context.Context, attachments []Attachment) []ScanVerdict
}

// SpamChecker is the sliding-window flood detector
type SpamChecker interface {
	// Check records one message from (scope, author) at now and reports
	// whether the key is currently over the rate limit.
	Check(scope, author string, now time.Time) SpamResult
}

// ReputationClient checks a URL against an external reputation service
type ReputationClient interface {
	// Check returns true when the reputation service knows the URL as a
	// threat. Errors degrade to "no signal" at the call site.
	Check(ctx context.Context, url string) (bool, error)
}

// SignatureScanner is an antivirus-style scanner over a local file
type SignatureScanner interface {
	// Scan returns whether the file matched and the signature label
	Scan(ctx context.Context, path string) (bool, string, error)
}

// RuleScanner is a pattern-rule scanner over a local file
type RuleScanner interface {
	// Scan returns the names of all matched rules; empty means no match
	Scan(ctx context.Context, path string) ([]string, error)
}

// OffloadQueue hands a task to an asynchronous deep-scan worker.
// Delivery is at-least-once and fire-and-forget; once a task is accepted
// the worker owns cleanup of any referenced transient file.
type OffloadQueue interface {
	Publish(ctx context.Context, task OffloadTask) error
}

// HashRegistry maps a content hash to a standing block reason.
// Register must behave as insert-if-absent: concurrent duplicate inserts
// for the same hash are safe no-ops.
type HashRegistry interface {
	Lookup(ctx context.Context, hash string) (reason string, found bool, err error)
	Register(ctx context.Context, hash, label, reason string) error
}

// AuditLog is the append-only record of messages, verdicts and events
type AuditLog interface {
	LogMessage(ctx context.Context, msg *Message) error
	LogScan(ctx context.Context, msg *Message, verdict ScanVerdict) error
	LogEvent(ctx context.Context, msg *Message, eventType, detail string) error
}
