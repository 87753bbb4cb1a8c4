package yara

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	output  map[string][]byte
	err     error
	missing bool
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args[0])
	if f.err != nil {
		return nil, f.err
	}
	return f.output[filepath.Base(args[0])], nil
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if f.missing {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + file, nil
}

func writeRuleFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("rule x {}"), 0o644))
	}
	return dir
}

func TestClient_MissingBinaryFailsFast(t *testing.T) {
	_, err := NewClient(&fakeRunner{missing: true}, "yara", t.TempDir(), time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_ScanCollectsMatches(t *testing.T) {
	dir := writeRuleFiles(t, "a.yar", "b.yara", "ignored.txt")
	runner := &fakeRunner{output: map[string][]byte{
		"a.yar":  []byte("suspicious_strings /tmp/scan-1\n"),
		"b.yara": []byte("packed_binary /tmp/scan-1\nsuspicious_strings /tmp/scan-1\n"),
	}}

	client, err := NewClient(runner, "yara", dir, time.Second, zap.NewNop())
	require.NoError(t, err)

	matches, err := client.Scan(context.Background(), "/tmp/scan-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"suspicious_strings", "packed_binary"}, matches)
	assert.Len(t, runner.calls, 2, "non-rule files must be skipped")
}

func TestClient_NoRuleFilesIsNoSignal(t *testing.T) {
	dir := writeRuleFiles(t, "readme.md")
	client, err := NewClient(&fakeRunner{}, "yara", dir, time.Second, zap.NewNop())
	require.NoError(t, err)

	matches, err := client.Scan(context.Background(), "/tmp/scan-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestClient_RunnerErrorSurfaces(t *testing.T) {
	dir := writeRuleFiles(t, "a.yar")
	client, err := NewClient(&fakeRunner{err: errors.New("boom")}, "yara", dir, time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Scan(context.Background(), "/tmp/scan-1")
	assert.Error(t, err)
}
