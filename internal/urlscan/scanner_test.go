package urlscan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// identityResolver resolves every URL to itself and counts calls
type identityResolver struct {
	calls atomic.Int64
}

func (r *identityResolver) Resolve(ctx context.Context, rawURL string) Resolution {
	r.calls.Add(1)
	return Resolution{URL: rawURL, Resolved: true}
}

// fakeReputation returns a fixed answer and counts calls
type fakeReputation struct {
	matched bool
	err     error
	calls   atomic.Int64
}

func (f *fakeReputation) Check(ctx context.Context, url string) (bool, error) {
	f.calls.Add(1)
	return f.matched, f.err
}

func TestScanner_PhishingURLWithoutReputation(t *testing.T) {
	resolver := &identityResolver{}
	scanner := NewScanner(resolver, NewRuleEngine(nil), nil, 16, zap.NewNop())

	verdicts := scanner.ScanContent(context.Background(),
		"look http://secure-login.example.com/verify")

	require.Len(t, verdicts, 1)
	v := verdicts[0]
	assert.True(t, v.Malicious)
	assert.Equal(t, core.TargetURL, v.TargetType)
	assert.Equal(t, "http://secure-login.example.com/verify", v.Target)
	assert.Contains(t, v.Reason(), "common phishing pattern")
}

func TestScanner_CacheHitSkipsResolution(t *testing.T) {
	resolver := &identityResolver{}
	rep := &fakeReputation{}
	scanner := NewScanner(resolver, NewRuleEngine(nil), rep, 16, zap.NewNop())

	first := scanner.ScanMany(context.Background(), []string{"https://example.com/a"})
	second := scanner.ScanMany(context.Background(), []string{"https://example.com/a"})

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), resolver.calls.Load())
	assert.Equal(t, int64(1), rep.calls.Load())
}

func TestScanner_DuplicateMissesCollapsed(t *testing.T) {
	resolver := &identityResolver{}
	rep := &fakeReputation{}
	scanner := NewScanner(resolver, NewRuleEngine(nil), rep, 16, zap.NewNop())

	verdicts := scanner.ScanMany(context.Background(), []string{
		"https://example.com/a",
		"https://example.com/a",
		"https://example.com/a",
	})

	require.Len(t, verdicts, 3)
	assert.Equal(t, int64(1), resolver.calls.Load(),
		"identical in-flight misses must share one resolution")
}

func TestScanner_ReputationErrorDegradesToNoSignal(t *testing.T) {
	resolver := &identityResolver{}
	rep := &fakeReputation{err: errors.New("service unavailable")}
	scanner := NewScanner(resolver, NewRuleEngine(nil), rep, 16, zap.NewNop())

	verdicts := scanner.ScanMany(context.Background(),
		[]string{"http://secure-login.example.com/verify"})

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Malicious,
		"heuristic verdict must survive a reputation failure")
	assert.Contains(t, verdicts[0].Reason(), "phishing")
}

func TestScanner_ReputationMatchAddsReason(t *testing.T) {
	resolver := &identityResolver{}
	rep := &fakeReputation{matched: true}
	scanner := NewScanner(resolver, NewRuleEngine(nil), rep, 16, zap.NewNop())

	verdicts := scanner.ScanMany(context.Background(),
		[]string{"http://secure-login.example.com/verify"})

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Malicious)
	assert.Contains(t, verdicts[0].Reason(), "Google Safe Browsing")
	assert.GreaterOrEqual(t, len(verdicts[0].Reasons), 2,
		"reputation and heuristics must both contribute")
}

func TestScanner_BatchOrderMatchesInput(t *testing.T) {
	resolver := &identityResolver{}
	scanner := NewScanner(resolver, NewRuleEngine(nil), nil, 16, zap.NewNop())

	urls := []string{
		"https://one.example/",
		"http://secure-login.example.com/verify",
		"https://three.example/",
	}
	verdicts := scanner.ScanMany(context.Background(), urls)

	require.Len(t, verdicts, 3)
	for i, u := range urls {
		assert.Equal(t, u, verdicts[i].Target)
	}
	assert.False(t, verdicts[0].Malicious)
	assert.True(t, verdicts[1].Malicious)
	assert.False(t, verdicts[2].Malicious)
}
