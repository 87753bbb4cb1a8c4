package urlscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "Empty text",
			text:     "",
			expected: nil,
		},
		{
			name:     "No URLs",
			text:     "just a normal chat message",
			expected: nil,
		},
		{
			name:     "Single URL",
			text:     "look at https://example.com/page",
			expected: []string{"https://example.com/page"},
		},
		{
			name:     "Trailing punctuation stripped",
			text:     "check https://example.com/page, and http://other.example.org/x!?",
			expected: []string{"https://example.com/page", "http://other.example.org/x"},
		},
		{
			name:     "Wrapped in parentheses",
			text:     "(see https://example.com/a)",
			expected: []string{"https://example.com/a"},
		},
		{
			name:     "Duplicates removed first-seen order kept",
			text:     "https://b.example https://a.example https://b.example",
			expected: []string{"https://b.example", "https://a.example"},
		},
		{
			name:     "Scheme case-insensitive",
			text:     "HTTPS://EXAMPLE.COM/UP",
			expected: []string{"HTTPS://EXAMPLE.COM/UP"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(tt.text))
		})
	}
}

func TestExtract_LengthCap(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", maxURLLength)
	got := Extract("short https://example.com/ok and " + long)
	assert.Equal(t, []string{"https://example.com/ok"}, got)
}

func TestExtract_Idempotent(t *testing.T) {
	text := "https://a.example https://b.example, https://a.example"
	first := Extract(text)
	second := Extract(text)
	assert.Equal(t, first, second)

	seen := make(map[string]bool)
	for _, u := range first {
		assert.False(t, seen[u], "duplicate %q in result", u)
		assert.LessOrEqual(t, len(u), maxURLLength)
		seen[u] = true
	}
}

func TestExtract_InvalidUTF8DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Extract("broken \xff\xfe bytes https://example.com/x \xf0")
	})
}
