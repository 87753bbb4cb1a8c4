package urlscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleEngine_Check(t *testing.T) {
	engine := NewRuleEngine(nil)

	tests := []struct {
		name        string
		url         string
		wantReasons int
		wantSubstr  string
	}{
		{
			name:       "Test signature",
			url:        "https://files.example.com/eicar.txt",
			wantSubstr: "test malicious pattern",
		},
		{
			name:       "Sensitive keyword over plain HTTP",
			url:        "http://example.com/login",
			wantSubstr: "insecure HTTP",
		},
		{
			name:        "Sensitive keyword over HTTPS is fine",
			url:         "https://example.com/login",
			wantReasons: 0,
		},
		{
			name:       "Phishing slug",
			url:        "https://evil.example/verify-account",
			wantSubstr: "common phishing pattern",
		},
		{
			name:       "Locale keyword",
			url:        "https://evil.example/본인확인",
			wantSubstr: "KR phishing keyword",
		},
		{
			name:       "Case insensitive",
			url:        "https://evil.example/VERIFY-ACCOUNT",
			wantSubstr: "common phishing pattern",
		},
		{
			name:        "Clean URL",
			url:         "https://example.com/pictures/cat.png",
			wantReasons: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasons := engine.Check(tt.url)
			if tt.wantSubstr != "" {
				assert.NotEmpty(t, reasons)
				found := false
				for _, r := range reasons {
					if strings.Contains(r, tt.wantSubstr) {
						found = true
					}
				}
				assert.True(t, found, "expected a reason containing %q, got %v", tt.wantSubstr, reasons)
			} else {
				assert.Len(t, reasons, tt.wantReasons)
			}
		})
	}
}

func TestRuleEngine_AllFamiliesAccumulate(t *testing.T) {
	engine := NewRuleEngine(nil)

	// Insecure scheme + sensitive keyword + phishing slug in one URL.
	reasons := engine.Check("http://secure-login.example.com/verify")
	assert.GreaterOrEqual(t, len(reasons), 2, "every matching family must contribute: %v", reasons)
}

func TestRuleEngine_ExemptHost(t *testing.T) {
	engine := NewRuleEngine([]string{"trusted.example.com"})

	assert.Empty(t, engine.Check("http://trusted.example.com/login"))
	assert.NotEmpty(t, engine.Check("http://other.example.com/login"))
}
