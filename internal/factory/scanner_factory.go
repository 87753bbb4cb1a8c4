package factory

import (
	"context"
	"fmt"

	"github.com/mikey/chat-sentinel/internal/adapters/clamav"
	"github.com/mikey/chat-sentinel/internal/adapters/reputation"
	"github.com/mikey/chat-sentinel/internal/adapters/yara"
	"github.com/mikey/chat-sentinel/internal/config"
	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/mikey/chat-sentinel/internal/filescan"
	"github.com/mikey/chat-sentinel/internal/spam"
	"github.com/mikey/chat-sentinel/internal/urlscan"
	"go.uber.org/zap"
)

// ScannerFactory creates the content scanners based on configuration
type ScannerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewScannerFactory creates a new scanner factory
func NewScannerFactory(cfg *config.Config, logger *zap.Logger) *ScannerFactory {
	return &ScannerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateURLScanner creates the URL scanner, or nil when URL scanning is
// disabled
func (f *ScannerFactory) CreateURLScanner() (*urlscan.Scanner, error) {
	if !f.cfg.GetBool("urlscan.enabled") {
		return nil, nil
	}

	resolver := urlscan.NewRedirectResolver(
		f.cfg.GetDuration("urlscan.request_timeout"),
		f.cfg.GetInt("urlscan.max_redirects"),
		f.logger,
	)
	rules := urlscan.NewRuleEngine(f.cfg.GetStringSlice("urlscan.exempt_hosts"))

	return urlscan.NewScanner(
		resolver,
		rules,
		f.createReputationClient(),
		f.cfg.GetInt("urlscan.cache_size"),
		f.logger,
	), nil
}

// createReputationClient builds the remote reputation client. A missing
// API key or a failed client init degrades to local rules only.
func (f *ScannerFactory) createReputationClient() core.ReputationClient {
	if !f.cfg.GetBool("reputation.enabled") {
		return nil
	}
	apiKey := f.cfg.GetString("reputation.api_key")
	if apiKey == "" {
		f.logger.Warn("Reputation lookups enabled but no API key configured, using local rules only")
		return nil
	}
	client, err := reputation.NewSafeBrowsingClient(
		context.Background(),
		apiKey,
		f.cfg.GetDuration("reputation.timeout"),
		f.logger,
	)
	if err != nil {
		f.logger.Warn("Failed to create reputation client, using local rules only", zap.Error(err))
		return nil
	}
	return client
}

// CreateFileScanner creates the file scanner, or nil when file scanning
// is disabled
func (f *ScannerFactory) CreateFileScanner(registry core.HashRegistry, queue core.OffloadQueue) (*filescan.Scanner, error) {
	if !f.cfg.GetBool("filescan.enabled") {
		return nil, nil
	}

	policy := filescan.NewExtensionPolicy(f.cfg.GetStringSlice("filescan.blocked_extensions"))

	return filescan.NewScanner(
		policy,
		registry,
		f.CreateSignatureScanner(),
		f.CreateRuleScanner(),
		queue,
		f.cfg.GetInt("filescan.cache_size"),
		f.cfg.GetString("filescan.tmp_dir"),
		f.logger,
	), nil
}

// CreateSignatureScanner builds the ClamAV client when enabled. An
// unreachable daemon is a startup warning, not a failure; individual
// scans degrade on their own.
func (f *ScannerFactory) CreateSignatureScanner() core.SignatureScanner {
	if !f.cfg.GetBool("clamav.enabled") {
		return nil
	}
	client := clamav.NewClient(
		f.cfg.GetString("clamav.address"),
		f.cfg.GetDuration("clamav.timeout"),
		f.logger,
	)
	if err := client.Ping(context.Background()); err != nil {
		f.logger.Warn("ClamAV daemon not reachable at startup", zap.Error(err))
	}
	return client
}

// CreateRuleScanner builds the YARA client when enabled
func (f *ScannerFactory) CreateRuleScanner() core.RuleScanner {
	if !f.cfg.GetBool("yara.enabled") {
		return nil
	}
	client, err := yara.NewClient(
		yara.OSRunner{},
		f.cfg.GetString("yara.binary"),
		f.cfg.GetString("yara.rules_path"),
		f.cfg.GetDuration("yara.timeout"),
		f.logger,
	)
	if err != nil {
		f.logger.Warn("Failed to create YARA client, rule scanning disabled", zap.Error(err))
		return nil
	}
	return client
}

// CreateSpamDetector creates the spam detector, or nil when spam
// detection is disabled
func (f *ScannerFactory) CreateSpamDetector() (*spam.Detector, error) {
	if !f.cfg.GetBool("spam.enabled") {
		return nil, nil
	}

	window := f.cfg.GetDuration("spam.window")
	limit := f.cfg.GetInt("spam.message_limit")
	if window <= 0 || limit <= 0 {
		return nil, fmt.Errorf("invalid spam settings: window=%s limit=%d", window, limit)
	}
	return spam.NewDetector(window, limit, f.logger), nil
}
