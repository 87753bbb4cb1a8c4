package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikey/chat-sentinel/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubURLScanner struct {
	verdicts []core.ScanVerdict
}

func (s *stubURLScanner) ScanContent(ctx context.Context, content string) []core.ScanVerdict {
	return s.verdicts
}

func newTestServer(urls core.URLScanner) *Server {
	pipeline := core.NewPipeline(urls, nil, nil, nil, zap.NewNop())
	return NewServer("127.0.0.1:0", pipeline, zap.NewNop())
}

func postScan(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ScanCleanMessage(t *testing.T) {
	srv := newTestServer(&stubURLScanner{})

	rec := postScan(t, srv, `{
		"message_id": "m1",
		"author_id": "u1",
		"content": "hello there"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(core.ActionAllow), resp.Action)
	assert.NotEmpty(t, resp.ID)
	assert.Empty(t, resp.URLVerdicts)
}

func TestServer_ScanMaliciousURLWarns(t *testing.T) {
	srv := newTestServer(&stubURLScanner{verdicts: []core.ScanVerdict{{
		TargetType: core.TargetURL,
		Target:     "http://secure-login.example.com/verify",
		Malicious:  true,
		Reasons:    []string{"local rule: common phishing pattern"},
	}}})

	rec := postScan(t, srv, `{
		"message_id": "m2",
		"author_id": "u1",
		"content": "click http://secure-login.example.com/verify"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(core.ActionWarn), resp.Action)
	require.Len(t, resp.URLVerdicts, 1)
	assert.True(t, resp.URLVerdicts[0].Malicious)
}

func TestServer_MissingRequiredFieldsRejected(t *testing.T) {
	srv := newTestServer(&stubURLScanner{})

	rec := postScan(t, srv, `{"content": "no ids"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
