package yara

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client implements the rule-scan port by driving the yara command-line
// scanner over a directory of compiled-on-the-fly rule files
type Client struct {
	runner    Runner
	binary    string
	rulesPath string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient creates a YARA client. It fails fast when the binary is not
// on PATH so a misconfigured host disables the signal at startup instead
// of on every message.
func NewClient(runner Runner, binary, rulesPath string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if _, err := runner.LookPath(binary); err != nil {
		return nil, fmt.Errorf("yara binary %q not found: %w", binary, err)
	}
	return &Client{
		runner:    runner,
		binary:    binary,
		rulesPath: rulesPath,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Scan runs every rule file against path and returns the union of
// matched rule names. An empty result means no rule matched.
func (c *Client) Scan(ctx context.Context, path string) ([]string, error) {
	ruleFiles, err := c.ruleFiles()
	if err != nil {
		return nil, err
	}
	if len(ruleFiles) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	seen := make(map[string]struct{})
	var matches []string
	for _, ruleFile := range ruleFiles {
		out, err := c.runner.Run(ctx, c.binary, ruleFile, path)
		if err != nil {
			return nil, fmt.Errorf("rule file %s: %w", filepath.Base(ruleFile), err)
		}
		for _, name := range parseMatches(out) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			matches = append(matches, name)
		}
	}

	if len(matches) > 0 {
		c.logger.Debug("YARA rule matches",
			zap.String("path", path),
			zap.Strings("rules", matches))
	}
	return matches, nil
}

// ruleFiles lists the .yar/.yara files under the rules directory
func (c *Client) ruleFiles() ([]string, error) {
	entries, err := os.ReadDir(c.rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yar") || strings.HasSuffix(name, ".yara") {
			files = append(files, filepath.Join(c.rulesPath, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// parseMatches extracts rule names from yara's "rule_name target" output
func parseMatches(out []byte) []string {
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return names
}
