package urlscan

import (
	"net/url"
	"strings"
)

// Rule families evaluated by the heuristic engine. Matching is
// case-insensitive substring search on the resolved URL; no I/O.
var (
	testSignatures = []string{"eicar", "malware.test", "phishing.test"}

	sensitiveKeywords = []string{
		"login", "verify", "account", "secure", "password",
		"bank", "wallet", "update", "certificate", "auth",
	}

	phishingSlugs = []string{
		"account-security", "verify-account",
		"reset-password", "secure-login",
		"bank-login", "wallet-auth",
	}

	localeKeywords = []string{
		"본인확인", "명의도용", "계좌", "농협", "신한", "카카오", "인증", "보안",
	}
)

// RuleEngine is the stateless heuristic matcher run against resolved
// URLs. Hosts on the exempt list are never flagged.
type RuleEngine struct {
	exemptHosts map[string]struct{}
}

// NewRuleEngine creates a rule engine with an optional exempt-host list
func NewRuleEngine(exemptHosts []string) *RuleEngine {
	exempt := make(map[string]struct{}, len(exemptHosts))
	for _, h := range exemptHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			exempt[h] = struct{}{}
		}
	}
	return &RuleEngine{exemptHosts: exempt}
}

// Check evaluates every rule family against rawURL and returns one
// reason per family that matched, in a fixed family order. An empty
// result means no family fired.
func (e *RuleEngine) Check(rawURL string) []string {
	lowered := strings.ToLower(rawURL)

	if e.isExempt(lowered) {
		return nil
	}

	var reasons []string
	if containsAny(lowered, testSignatures) {
		reasons = append(reasons, "local rule: test malicious pattern")
	}
	if strings.HasPrefix(lowered, "http://") && containsAny(lowered, sensitiveKeywords) {
		reasons = append(reasons, "local rule: sensitive keyword over insecure HTTP")
	}
	if containsAny(lowered, phishingSlugs) {
		reasons = append(reasons, "local rule: common phishing pattern")
	}
	if containsAny(lowered, localeKeywords) {
		reasons = append(reasons, "local rule: KR phishing keyword")
	}
	return reasons
}

func (e *RuleEngine) isExempt(lowered string) bool {
	if len(e.exemptHosts) == 0 {
		return false
	}
	u, err := url.Parse(lowered)
	if err != nil || u.Host == "" {
		return false
	}
	_, ok := e.exemptHosts[u.Hostname()]
	return ok
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
