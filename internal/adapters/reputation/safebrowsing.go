package reputation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	safebrowsing "google.golang.org/api/safebrowsing/v4"
)

// threatTypes is the fixed set of Safe Browsing threat categories every
// lookup asks about
var threatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

// SafeBrowsingClient implements the reputation port against the Google
// Safe Browsing v4 Lookup API
type SafeBrowsingClient struct {
	svc     *safebrowsing.Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewSafeBrowsingClient creates a client using the given API key
func NewSafeBrowsingClient(ctx context.Context, apiKey string, timeout time.Duration, logger *zap.Logger) (*SafeBrowsingClient, error) {
	svc, err := safebrowsing.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Safe Browsing service: %w", err)
	}
	return &SafeBrowsingClient{
		svc:     svc,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Check returns true when Safe Browsing knows the URL as a threat
func (c *SafeBrowsingClient) Check(ctx context.Context, url string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &safebrowsing.GoogleSecuritySafebrowsingV4FindThreatMatchesRequest{
		Client: &safebrowsing.GoogleSecuritySafebrowsingV4ClientInfo{
			ClientId:      "chat-sentinel",
			ClientVersion: "1.0",
		},
		ThreatInfo: &safebrowsing.GoogleSecuritySafebrowsingV4ThreatInfo{
			ThreatTypes:      threatTypes,
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries: []*safebrowsing.GoogleSecuritySafebrowsingV4ThreatEntry{
				{Url: url},
			},
		},
	}

	resp, err := c.svc.ThreatMatches.Find(req).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("threat match lookup failed: %w", err)
	}

	if len(resp.Matches) > 0 {
		c.logger.Debug("Safe Browsing match",
			zap.String("url", url),
			zap.Int("matches", len(resp.Matches)))
		return true, nil
	}
	return false, nil
}
