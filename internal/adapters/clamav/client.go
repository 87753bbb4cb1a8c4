package clamav

import (
	"context"
	"fmt"
	"os"
	"time"

	clamd "github.com/dutchcoders/go-clamd"
	"go.uber.org/zap"
)

// Client implements the signature-scan port against a clamd daemon
type Client struct {
	clam    *clamd.Clamd
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a clamd client. address uses go-clamd notation,
// e.g. "tcp://127.0.0.1:3310" or "/var/run/clamav/clamd.ctl".
func NewClient(address string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		clam:    clamd.NewClamd(address),
		timeout: timeout,
		logger:  logger,
	}
}

// Ping verifies the daemon is reachable
func (c *Client) Ping(ctx context.Context) error {
	if err := c.clam.Ping(); err != nil {
		return fmt.Errorf("clamd unreachable: %w", err)
	}
	return nil
}

// Scan streams the file at path to clamd and reports whether a signature
// matched, with its label. The file is streamed rather than scanned by
// path so clamd does not need filesystem access to the transient store.
func (c *Client) Scan(ctx context.Context, path string) (bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return false, "", fmt.Errorf("failed to open file for scanning: %w", err)
	}
	defer f.Close()

	abort := make(chan bool)
	defer close(abort)

	results, err := c.clam.ScanStream(f, abort)
	if err != nil {
		return false, "", fmt.Errorf("clamd stream scan failed: %w", err)
	}

	for {
		select {
		case res, ok := <-results:
			if !ok {
				return false, "", nil
			}
			if res.Status == clamd.RES_FOUND {
				c.logger.Debug("ClamAV signature match",
					zap.String("path", path),
					zap.String("signature", res.Description))
				return true, res.Description, nil
			}
			if res.Status == clamd.RES_ERROR || res.Status == clamd.RES_PARSE_ERROR {
				return false, "", fmt.Errorf("clamd scan error: %s", res.Raw)
			}
		case <-ctx.Done():
			return false, "", fmt.Errorf("clamd scan timed out: %w", ctx.Err())
		}
	}
}
