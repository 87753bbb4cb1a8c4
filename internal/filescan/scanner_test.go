package filescan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bytesAttachment(name string, data []byte) core.Attachment {
	return core.Attachment{
		Filename: name,
		Size:     int64(len(data)),
		Fetch: func(ctx context.Context, w io.Writer) error {
			_, err := w.Write(data)
			return err
		},
	}
}

type fakeRegistry struct {
	mu      sync.Mutex
	blocked map[string]string
	lookups atomic.Int64
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{blocked: make(map[string]string)}
}

func (r *fakeRegistry) Lookup(ctx context.Context, hash string) (string, bool, error) {
	r.lookups.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.blocked[hash]
	return reason, ok, nil
}

func (r *fakeRegistry) Register(ctx context.Context, hash, label, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.blocked[hash]; !exists {
		r.blocked[hash] = reason
	}
	return nil
}

type fakeSignatureScanner struct {
	matched bool
	label   string
	err     error
	calls   atomic.Int64
}

func (f *fakeSignatureScanner) Scan(ctx context.Context, path string) (bool, string, error) {
	f.calls.Add(1)
	return f.matched, f.label, f.err
}

type fakeRuleScanner struct {
	names []string
	err   error
}

func (f *fakeRuleScanner) Scan(ctx context.Context, path string) ([]string, error) {
	return f.names, f.err
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []core.OffloadTask
	err   error
}

func (q *fakeQueue) Publish(ctx context.Context, task core.OffloadTask) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func newTestScanner(registry core.HashRegistry, sig core.SignatureScanner, rules core.RuleScanner, queue core.OffloadQueue, t *testing.T) *Scanner {
	t.Helper()
	return NewScanner(
		NewExtensionPolicy(DefaultBlockedExtensions),
		registry, sig, rules, queue,
		16, t.TempDir(), zap.NewNop(),
	)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestScanner_BlockedExtensionSkipsDownload(t *testing.T) {
	fetched := false
	att := core.Attachment{
		Filename: "invoice.exe",
		Size:     100,
		Fetch: func(ctx context.Context, w io.Writer) error {
			fetched = true
			return nil
		},
	}
	clean := bytesAttachment("photo.png", []byte("pixels"))

	scanner := newTestScanner(newFakeRegistry(), &fakeSignatureScanner{}, &fakeRuleScanner{}, nil, t)
	verdicts := scanner.ScanAttachments(context.Background(), []core.Attachment{att, clean})

	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].Malicious)
	assert.Contains(t, verdicts[0].Reason(), "blocked extension")
	assert.False(t, fetched, "blocked extension must not trigger a download")

	assert.False(t, verdicts[1].Malicious)
	assert.NotEmpty(t, verdicts[1].ContentHash)
}

func TestScanner_RegistryHitSkipsSignatureScan(t *testing.T) {
	data := []byte("previously flagged payload")
	registry := newFakeRegistry()
	registry.blocked[sha256Hex(data)] = "ClamAV: Win.Test.EICAR"

	sig := &fakeSignatureScanner{}
	scanner := newTestScanner(registry, sig, &fakeRuleScanner{}, nil, t)

	verdicts := scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("repost.bin", data)})

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Malicious)
	assert.Contains(t, verdicts[0].Reason(), "re-upload of blocked file")
	assert.Equal(t, int64(0), sig.calls.Load(),
		"registry hit must short-circuit the signature scanner")
}

func TestScanner_SignatureMatchRegistersHash(t *testing.T) {
	data := []byte("fresh malware")
	registry := newFakeRegistry()
	sig := &fakeSignatureScanner{matched: true, label: "Win.Test.EICAR_HDB-1"}

	scanner := newTestScanner(registry, sig, &fakeRuleScanner{}, nil, t)
	verdicts := scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("dropper.bin", data)})

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Malicious)
	assert.Contains(t, verdicts[0].Reason(), "ClamAV: Win.Test.EICAR_HDB-1")
	assert.Equal(t, sha256Hex(data), verdicts[0].ContentHash)

	reason, found, err := registry.Lookup(context.Background(), sha256Hex(data))
	require.NoError(t, err)
	assert.True(t, found, "malicious hash must be registered")
	assert.Contains(t, reason, "ClamAV")
}

func TestScanner_RuleMatchesAccumulate(t *testing.T) {
	sig := &fakeSignatureScanner{matched: true, label: "Sig.A"}
	rules := &fakeRuleScanner{names: []string{"rule_one", "rule_two"}}

	scanner := newTestScanner(newFakeRegistry(), sig, rules, nil, t)
	verdicts := scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("sample.bin", []byte("x"))})

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Malicious)
	assert.Len(t, verdicts[0].Reasons, 2, "both collaborators must contribute")
	assert.Contains(t, verdicts[0].Reason(), "YARA: rule_one, rule_two")
}

func TestScanner_CollaboratorErrorsDegrade(t *testing.T) {
	sig := &fakeSignatureScanner{err: errors.New("clamd unreachable")}
	rules := &fakeRuleScanner{err: errors.New("yara missing")}

	scanner := newTestScanner(newFakeRegistry(), sig, rules, nil, t)
	verdicts := scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("doc.pdf", []byte("content"))})

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Malicious)
	assert.NotEmpty(t, verdicts[0].ContentHash,
		"hash is still computed when AV collaborators fail")
}

func TestScanner_FetchFailureYieldsBenignVerdict(t *testing.T) {
	att := core.Attachment{
		Filename: "flaky.bin",
		Size:     10,
		Fetch: func(ctx context.Context, w io.Writer) error {
			return errors.New("gateway timeout")
		},
	}

	scanner := newTestScanner(newFakeRegistry(), &fakeSignatureScanner{}, &fakeRuleScanner{}, nil, t)
	verdicts := scanner.ScanAttachments(context.Background(), []core.Attachment{att})

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Malicious)
	assert.Empty(t, verdicts[0].ContentHash)
}

func TestScanner_OffloadTransfersCleanupOwnership(t *testing.T) {
	queue := &fakeQueue{}
	scanner := newTestScanner(newFakeRegistry(), &fakeSignatureScanner{}, &fakeRuleScanner{}, queue, t)

	verdicts := scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("deep.bin", []byte("inspect me"))})

	require.Len(t, verdicts, 1)
	require.Len(t, queue.tasks, 1)
	task := queue.tasks[0]
	assert.Equal(t, core.TaskTypeFileScan, task.Type)
	assert.Equal(t, "deep.bin", task.Filename)

	_, err := os.Stat(task.TmpPath)
	assert.NoError(t, err, "handed-off file must survive for the worker")
	os.Remove(task.TmpPath)
}

func TestScanner_NoOffloadDeletesTempFile(t *testing.T) {
	tmpDir := t.TempDir()
	scanner := NewScanner(
		NewExtensionPolicy(DefaultBlockedExtensions),
		newFakeRegistry(), &fakeSignatureScanner{}, &fakeRuleScanner{}, nil,
		16, tmpDir, zap.NewNop(),
	)

	scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("local.bin", []byte("bytes"))})

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "transient file must be deleted when not handed off")
}

func TestScanner_PublishFailureKeepsLocalCleanup(t *testing.T) {
	tmpDir := t.TempDir()
	queue := &fakeQueue{err: errors.New("broker down")}
	scanner := NewScanner(
		NewExtensionPolicy(DefaultBlockedExtensions),
		newFakeRegistry(), &fakeSignatureScanner{}, &fakeRuleScanner{}, queue,
		16, tmpDir, zap.NewNop(),
	)

	scanner.ScanAttachments(context.Background(),
		[]core.Attachment{bytesAttachment("stay.bin", []byte("bytes"))})

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed publish must fall back to local deletion")
}

func TestScanner_CacheReusesVerdict(t *testing.T) {
	registry := newFakeRegistry()
	scanner := newTestScanner(registry, &fakeSignatureScanner{}, &fakeRuleScanner{}, nil, t)

	att := bytesAttachment("same.png", []byte("identical"))
	scanner.ScanAttachments(context.Background(), []core.Attachment{att})
	scanner.ScanAttachments(context.Background(), []core.Attachment{att})

	assert.Equal(t, int64(1), registry.lookups.Load(),
		"second scan of the same filename:size must come from cache")
}
