package urlscan

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Resolution is the outcome of following a URL to its destination.
// Resolved is false when a transport failure stopped resolution early;
// URL then holds the last successfully known hop so the scan can still
// proceed on the unexpanded link.
type Resolution struct {
	URL      string
	Resolved bool
}

// Resolver follows a URL to its canonical destination
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) Resolution
}

// metaRefreshPattern finds the target of an HTML meta-refresh tag
var metaRefreshPattern = regexp.MustCompile(`(?i)<meta[^>]+http-equiv=["']refresh["'][^>]+url=([^"'>]+)`)

// scriptRedirectPatterns cover the handful of location-assignment idioms
// that shorteners and phishing kits use for script-level redirects
var scriptRedirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)window\.location\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)window\.location\.href\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)location\.href\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)top\.location\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)self\.location(?:\.replace)?\s*\(\s*["']([^"']+)["']`),
}

// maxRedirectBodyBytes bounds how much of an HTML page is read when
// probing for soft redirects
const maxRedirectBodyBytes = 256 << 10

// RedirectResolver resolves URLs through HTTP 3xx chains and HTML/script
// soft redirects, with one cumulative hop budget across both mechanisms
// so the two cannot loop into each other forever.
type RedirectResolver struct {
	client   *http.Client
	follower *http.Client
	maxHops  int
	logger   *zap.Logger
}

// NewRedirectResolver creates a resolver with the given per-request
// timeout and hop budget
func NewRedirectResolver(timeout time.Duration, maxHops int, logger *zap.Logger) *RedirectResolver {
	return &RedirectResolver{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Hops are followed by hand so the budget is enforced
				// across HTTP and HTML redirects together.
				return http.ErrUseLastResponse
			},
		},
		follower: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxHops {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxHops: maxHops,
		logger:  logger,
	}
}

// Resolve follows rawURL to its final destination. It never returns an
// error: any unrecoverable network failure degrades to the last known
// URL with Resolved=false.
func (r *RedirectResolver) Resolve(ctx context.Context, rawURL string) Resolution {
	current := rawURL
	hops := 0

	for {
		next, kind := r.step(ctx, current)
		switch kind {
		case stepRedirect:
			if hops >= r.maxHops {
				return Resolution{URL: current, Resolved: true}
			}
			hops++
			current = next
		case stepFinal:
			return Resolution{URL: next, Resolved: true}
		default: // stepFailed
			return Resolution{URL: current, Resolved: false}
		}
	}
}

type stepKind int

const (
	stepFinal stepKind = iota
	stepRedirect
	stepFailed
)

// step performs one resolution hop: a header-only request first, a full
// fetch as fallback, then a soft-redirect probe on a normal page.
func (r *RedirectResolver) step(ctx context.Context, current string) (string, stepKind) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, current, nil)
	if err != nil {
		return "", stepFailed
	}

	resp, err := r.client.Do(req)
	if err != nil {
		// HEAD rejected or transport error: fall back to a full fetch
		// with automatic redirect following and take its final URL.
		return r.fallbackGet(ctx, current)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return current, stepFinal
		}
		return resolveRef(current, loc), stepRedirect
	}

	if target, ok := r.softRedirect(ctx, current, resp.Header.Get("Content-Type")); ok {
		return target, stepRedirect
	}
	return current, stepFinal
}

// fallbackGet retries with GET and automatic redirects
func (r *RedirectResolver) fallbackGet(ctx context.Context, current string) (string, stepKind) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
	if err != nil {
		return "", stepFailed
	}
	resp, err := r.follower.Do(req)
	if err != nil {
		r.logger.Debug("URL resolution failed", zap.String("url", current), zap.Error(err))
		return "", stepFailed
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxRedirectBodyBytes))
	return resp.Request.URL.String(), stepFinal
}

// softRedirect fetches the page body and looks for a meta-refresh tag or
// a script-level location assignment. The bool result reports whether a
// redirect target was found.
func (r *RedirectResolver) softRedirect(ctx context.Context, current, contentType string) (string, bool) {
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
	if err != nil {
		return "", false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxRedirectBodyBytes))
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRedirectBodyBytes))
	if err != nil {
		return "", false
	}
	html := string(body)

	if m := metaRefreshPattern.FindStringSubmatch(html); m != nil {
		return resolveRef(current, strings.TrimSpace(m[1])), true
	}
	for _, pat := range scriptRedirectPatterns {
		if m := pat.FindStringSubmatch(html); m != nil {
			return resolveRef(current, strings.TrimSpace(m[1])), true
		}
	}
	return "", false
}

// resolveRef resolves a possibly-relative redirect target against base
func resolveRef(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	t, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(t).String()
}
