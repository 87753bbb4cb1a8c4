package filescan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mikey/chat-sentinel/internal/cache"
	"github.com/mikey/chat-sentinel/internal/core"
	"go.uber.org/zap"
)

// Scanner composes the extension policy, content hashing, the hash
// registry, the AV collaborators and an optional async offload into one
// verdict per attachment.
//
// The verdict cache is keyed on filename plus declared size, which is a
// weaker identity than the content hash but is the only one available
// before a download. The registry lookup on every miss still catches
// hash-known re-uploads posted under a colliding name.
type Scanner struct {
	policy     *ExtensionPolicy
	registry   core.HashRegistry
	signatures core.SignatureScanner
	rules      core.RuleScanner
	queue      core.OffloadQueue
	cache      *cache.LRU[string, core.ScanVerdict]
	tmpDir     string
	logger     *zap.Logger
}

// NewScanner creates a file scanner. registry, signatures, rules and
// queue may each be nil when the corresponding collaborator is disabled;
// the matching signal or behavior is then permanently absent.
func NewScanner(
	policy *ExtensionPolicy,
	registry core.HashRegistry,
	signatures core.SignatureScanner,
	rules core.RuleScanner,
	queue core.OffloadQueue,
	cacheSize int,
	tmpDir string,
	logger *zap.Logger,
) *Scanner {
	return &Scanner{
		policy:     policy,
		registry:   registry,
		signatures: signatures,
		rules:      rules,
		queue:      queue,
		cache:      cache.New[string, core.ScanVerdict](cacheSize),
		tmpDir:     tmpDir,
		logger:     logger,
	}
}

// ScanAttachments scans every attachment concurrently and returns one
// verdict per input, in input order
func (s *Scanner) ScanAttachments(ctx context.Context, attachments []core.Attachment) []core.ScanVerdict {
	verdicts := make([]core.ScanVerdict, len(attachments))

	var wg sync.WaitGroup
	for i, att := range attachments {
		key := cacheKey(att)
		if v, ok := s.cache.Get(key); ok {
			verdicts[i] = v
			continue
		}
		wg.Add(1)
		go func(i int, att core.Attachment, key string) {
			defer wg.Done()
			v := s.scanOne(ctx, att)
			s.cache.Put(key, v)
			verdicts[i] = v
		}(i, att, key)
	}
	wg.Wait()

	return verdicts
}

func cacheKey(att core.Attachment) string {
	return fmt.Sprintf("%s:%d", att.Filename, att.Size)
}

// scanOne runs the full per-attachment sequence: extension check,
// single download, hash, registry lookup, AV signals, hash registration
// and optional offload. The transient file is deleted on every exit path
// unless ownership moved to the offload queue.
func (s *Scanner) scanOne(ctx context.Context, att core.Attachment) core.ScanVerdict {
	verdict := core.ScanVerdict{
		TargetType: core.TargetFile,
		Target:     att.Filename,
	}

	// 1) Extension filter runs before any download to save bandwidth.
	if s.policy.IsBlocked(att.Filename) {
		verdict.Malicious = true
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("blocked extension: %s", Ext(att.Filename)))
		return verdict
	}

	if att.Fetch == nil {
		s.logger.Warn("Attachment has no fetch handle, skipping",
			zap.String("filename", att.Filename))
		return verdict
	}

	// 2) Fetch the bytes exactly once, hashing while writing.
	tmpPath, hash, err := s.download(ctx, att)
	if err != nil {
		s.logger.Warn("Attachment download failed, scan degraded",
			zap.String("filename", att.Filename), zap.Error(err))
		return verdict
	}
	verdict.ContentHash = hash

	handedOff := false
	defer func() {
		if handedOff {
			return
		}
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove transient scan file",
				zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	// 3) A registry hit is an immediate verdict: re-uploads of flagged
	// content never reach the AV collaborators.
	if s.registry != nil {
		reason, found, err := s.registry.Lookup(ctx, hash)
		if err != nil {
			s.logger.Warn("Hash registry lookup failed",
				zap.String("hash", hash), zap.Error(err))
		} else if found {
			verdict.Malicious = true
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("re-upload of blocked file: %s", reason))
			return verdict
		}
	}

	// 4) Independent AV signals; each failure degrades to no signal.
	if s.signatures != nil {
		matched, label, err := s.signatures.Scan(ctx, tmpPath)
		if err != nil {
			s.logger.Warn("Signature scan degraded to no signal",
				zap.String("filename", att.Filename), zap.Error(err))
		} else if matched {
			verdict.Malicious = true
			verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("ClamAV: %s", label))
		}
	}
	if s.rules != nil {
		names, err := s.rules.Scan(ctx, tmpPath)
		if err != nil {
			s.logger.Warn("Rule scan degraded to no signal",
				zap.String("filename", att.Filename), zap.Error(err))
		} else if len(names) > 0 {
			verdict.Malicious = true
			reason := "YARA: "
			for i, n := range names {
				if i > 0 {
					reason += ", "
				}
				reason += n
			}
			verdict.Reasons = append(verdict.Reasons, reason)
		}
	}

	// 5) Flagged content becomes a standing block for future uploads.
	if verdict.Malicious && s.registry != nil {
		if err := s.registry.Register(ctx, hash, att.Filename, verdict.Reason()); err != nil {
			s.logger.Warn("Failed to register malicious hash",
				zap.String("hash", hash), zap.Error(err))
		} else {
			s.logger.Info("Registered malicious content hash",
				zap.String("filename", att.Filename),
				zap.String("hash", hash))
		}
	}

	// 6) Optional deep-scan offload; once published, the worker owns
	// deletion of the transient file.
	if s.queue != nil {
		task := core.OffloadTask{
			Type:        core.TaskTypeFileScan,
			Filename:    att.Filename,
			Size:        att.Size,
			TmpPath:     tmpPath,
			ContentHash: verdict.ContentHash,
		}
		if err := s.queue.Publish(ctx, task); err != nil {
			s.logger.Warn("Offload publish failed, keeping local cleanup",
				zap.String("filename", att.Filename), zap.Error(err))
		} else {
			handedOff = true
		}
	}

	return verdict
}

// download streams the attachment into a transient file, computing the
// content hash over the same pass. The caller owns the returned path.
func (s *Scanner) download(ctx context.Context, att core.Attachment) (string, string, error) {
	f, err := os.CreateTemp(s.tmpDir, "scan-*"+sanitizeSuffix(att.Filename))
	if err != nil {
		return "", "", fmt.Errorf("failed to create transient file: %w", err)
	}
	tmpPath := f.Name()

	hasher := sha256.New()
	err = att.Fetch(ctx, io.MultiWriter(f, hasher))
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", "", fmt.Errorf("attachment fetch failed: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", "", fmt.Errorf("failed to finalize transient file: %w", closeErr)
	}

	return tmpPath, hex.EncodeToString(hasher.Sum(nil)), nil
}

// sanitizeSuffix keeps a recognizable extension on the temp file name
// without trusting path components from the attachment
func sanitizeSuffix(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	ext := filepath.Ext(base)
	return ext
}
