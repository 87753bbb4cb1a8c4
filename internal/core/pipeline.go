package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline is the top-level orchestrator invoked once per inbound
// message. It sequences the spam check, then the URL and file scans
// concurrently, and aggregates everything into a Report. The pipeline
// holds no per-scan state; all mutable state lives inside the detectors.
type Pipeline struct {
	urls   URLScanner
	files  FileScanner
	spam   SpamChecker
	audit  AuditLog
	logger *zap.Logger
}

// NewPipeline creates a new security pipeline. spam and audit may be nil
// when the corresponding feature is disabled.
func NewPipeline(
	urls URLScanner,
	files FileScanner,
	spam SpamChecker,
	audit AuditLog,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		urls:   urls,
		files:  files,
		spam:   spam,
		audit:  audit,
		logger: logger,
	}
}

// HandleMessage runs every check against one message and returns the
// combined report. It never fails the whole message because a single
// collaborator failed; degraded signals are logged and skipped.
func (p *Pipeline) HandleMessage(ctx context.Context, msg *Message) (*Report, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	report := &Report{
		ID:        uuid.NewString(),
		Action:    ActionAllow,
		CheckedAt: time.Now(),
	}

	// Spam first: it is cheap and in-memory, and a flagged flood must
	// not spend scanner resources.
	if p.spam != nil {
		res := p.spam.Check(msg.ScopeID, msg.AuthorID, time.Now())
		report.Spam = &res
		if res.IsSpam {
			p.logger.Info("Flood detected",
				zap.String("scope_id", msg.ScopeID),
				zap.String("author_id", msg.AuthorID),
				zap.Int("count", res.Count),
				zap.Int("window_sec", res.WindowSec))
			p.logEvent(ctx, msg, "spam_detected",
				fmt.Sprintf("count=%d window=%ds", res.Count, res.WindowSec))
			report.Action = ActionDelete
			return report, nil
		}
	}

	p.logMessage(ctx, msg)

	g, gctx := errgroup.WithContext(ctx)
	if p.urls != nil && msg.Content != "" {
		g.Go(func() error {
			report.URLVerdicts = p.urls.ScanContent(gctx, msg.Content)
			return nil
		})
	}
	if p.files != nil && len(msg.Attachments) > 0 {
		g.Go(func() error {
			report.FileVerdicts = p.files.ScanAttachments(gctx, msg.Attachments)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Scanners degrade internally and never return errors here, but
		// keep the orchestrator honest if that ever changes.
		p.logger.Warn("Scan group failed", zap.Error(err))
	}

	p.logVerdicts(ctx, msg, report)
	report.Action = p.decideAction(report)
	return report, nil
}

// decideAction maps aggregated verdicts to the suggested caller action:
// malicious attachments warrant deletion, malicious links a warning.
func (p *Pipeline) decideAction(report *Report) Action {
	for _, v := range report.FileVerdicts {
		if v.Malicious {
			return ActionDelete
		}
	}
	for _, v := range report.URLVerdicts {
		if v.Malicious {
			return ActionWarn
		}
	}
	return ActionAllow
}

func (p *Pipeline) logVerdicts(ctx context.Context, msg *Message, report *Report) {
	if p.audit == nil {
		return
	}
	for _, v := range report.URLVerdicts {
		if !v.Malicious {
			continue
		}
		if err := p.audit.LogScan(ctx, msg, v); err != nil {
			p.logger.Warn("Failed to log URL verdict", zap.Error(err))
		}
	}
	// Every file verdict is logged, benign included, so the audit trail
	// records that an attachment was inspected at all.
	for _, v := range report.FileVerdicts {
		if err := p.audit.LogScan(ctx, msg, v); err != nil {
			p.logger.Warn("Failed to log file verdict", zap.Error(err))
		}
	}
}

func (p *Pipeline) logMessage(ctx context.Context, msg *Message) {
	if p.audit == nil {
		return
	}
	if err := p.audit.LogMessage(ctx, msg); err != nil {
		p.logger.Warn("Failed to log message", zap.Error(err))
	}
}

func (p *Pipeline) logEvent(ctx context.Context, msg *Message, eventType, detail string) {
	if p.audit == nil {
		return
	}
	if err := p.audit.LogEvent(ctx, msg, eventType, detail); err != nil {
		p.logger.Warn("Failed to log event", zap.Error(err))
	}
}
