package core

import (
	"context"
	"io"
	"time"
)

// Message is an inbound chat message handed to the pipeline by the
// gateway. The pipeline never talks to the chat platform itself; it only
// inspects this value and returns a Report.
type Message struct {
	ScopeID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorName  string
	Content     string
	Attachments []Attachment
}

// Attachment describes a file attached to a message. Fetch streams the
// attachment bytes into w; the pipeline calls it at most once per scan.
type Attachment struct {
	Filename string
	Size     int64
	Fetch    func(ctx context.Context, w io.Writer) error
}

// TargetType identifies what kind of target a verdict refers to
type TargetType string

const (
	TargetURL  TargetType = "url"
	TargetFile TargetType = "file"
)

// ScanVerdict is the outcome of scanning a single URL or attachment.
// Reasons accumulates every signal that fired; it is never truncated to
// the first match.
type ScanVerdict struct {
	TargetType  TargetType
	Target      string
	Malicious   bool
	Reasons     []string
	ContentHash string
}

// Reason joins all contributing signals into a single display string
func (v ScanVerdict) Reason() string {
	out := ""
	for i, r := range v.Reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

// SpamResult is the outcome of the sliding-window spam check
type SpamResult struct {
	IsSpam    bool
	Count     int
	WindowSec int
}

// Action is the pipeline's suggested handling for a message. The caller
// owns the final decision; the pipeline never deletes or warns itself.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionWarn   Action = "warn"
	ActionDelete Action = "delete"
)

// Report is the combined result of all checks for one message
type Report struct {
	ID           string
	Spam         *SpamResult
	URLVerdicts  []ScanVerdict
	FileVerdicts []ScanVerdict
	Action       Action
	CheckedAt    time.Time
}

// Malicious reports whether any URL or file verdict fired
func (r *Report) Malicious() bool {
	for _, v := range r.URLVerdicts {
		if v.Malicious {
			return true
		}
	}
	for _, v := range r.FileVerdicts {
		if v.Malicious {
			return true
		}
	}
	return false
}

// OffloadTask is a deep-scan task handed to the async offload queue.
// The consumer that receives the task owns deletion of TmpPath.
type OffloadTask struct {
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	TmpPath     string `json:"tmp_path"`
	ContentHash string `json:"content_hash"`
}

// TaskTypeFileScan is the task type for offloaded attachment scans
const TaskTypeFileScan = "file_scan"
