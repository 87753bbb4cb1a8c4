package urlscan

import (
	"context"
	"sync"

	"github.com/mikey/chat-sentinel/internal/cache"
	"github.com/mikey/chat-sentinel/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Scanner composes extraction, redirect resolution, heuristic rules, the
// reputation collaborator and a bounded verdict cache into one verdict
// per URL. The cache is keyed by the original, unresolved URL so a
// re-posted shortened link reuses the stored verdict without another
// round of resolution.
type Scanner struct {
	resolver   Resolver
	rules      *RuleEngine
	reputation core.ReputationClient
	cache      *cache.LRU[string, core.ScanVerdict]
	flight     singleflight.Group
	logger     *zap.Logger
}

// NewScanner creates a URL scanner. reputation may be nil when the
// service is not configured; the signal is then permanently absent.
func NewScanner(
	resolver Resolver,
	rules *RuleEngine,
	reputation core.ReputationClient,
	cacheSize int,
	logger *zap.Logger,
) *Scanner {
	return &Scanner{
		resolver:   resolver,
		rules:      rules,
		reputation: reputation,
		cache:      cache.New[string, core.ScanVerdict](cacheSize),
		logger:     logger,
	}
}

// ScanContent extracts URLs from chat text and scans them
func (s *Scanner) ScanContent(ctx context.Context, content string) []core.ScanVerdict {
	urls := Extract(content)
	if len(urls) == 0 {
		return nil
	}
	return s.ScanMany(ctx, urls)
}

// ScanMany scans a batch of URLs concurrently and returns one verdict
// per input, in input order. Identical in-flight misses are collapsed so
// a burst of duplicate links costs one resolution and one reputation
// call.
func (s *Scanner) ScanMany(ctx context.Context, urls []string) []core.ScanVerdict {
	verdicts := make([]core.ScanVerdict, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		if v, ok := s.cache.Get(u); ok {
			verdicts[i] = v
			continue
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			v, _, _ := s.flight.Do(u, func() (interface{}, error) {
				// A sibling flight may have finished between the cache
				// check and here; the cache is the source of truth.
				if cached, ok := s.cache.Get(u); ok {
					return cached, nil
				}
				verdict := s.scanOne(ctx, u)
				s.cache.Put(u, verdict)
				return verdict, nil
			})
			verdicts[i] = v.(core.ScanVerdict)
		}(i, u)
	}
	wg.Wait()

	return verdicts
}

// scanOne resolves one URL and aggregates every signal that fires. The
// raw URL stays the verdict's identity; heuristics and reputation only
// ever see the resolved destination.
func (s *Scanner) scanOne(ctx context.Context, rawURL string) core.ScanVerdict {
	res := s.resolver.Resolve(ctx, rawURL)
	if !res.Resolved {
		s.logger.Debug("Scanning unexpanded URL after resolution failure",
			zap.String("url", rawURL))
	}

	reasons := s.rules.Check(res.URL)

	if s.reputation != nil {
		matched, err := s.reputation.Check(ctx, res.URL)
		if err != nil {
			s.logger.Warn("Reputation check degraded to no signal",
				zap.String("url", res.URL), zap.Error(err))
		} else if matched {
			reasons = append(reasons, "reputation match: Google Safe Browsing")
		}
	}

	return core.ScanVerdict{
		TargetType: core.TargetURL,
		Target:     rawURL,
		Malicious:  len(reasons) > 0,
		Reasons:    reasons,
	}
}
