package filescan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensionPolicy_IsBlocked(t *testing.T) {
	policy := NewExtensionPolicy(DefaultBlockedExtensions)

	tests := []struct {
		filename string
		blocked  bool
	}{
		{"invoice.exe", true},
		{"INVOICE.EXE", true},
		{"setup.Exe", true},
		{"script.js", true},
		{"runme.bat", true},
		{"archive.jar", true},
		{"photo.png", false},
		{"notes.txt", false},
		{"noextension", false},
		{"weird.exe.png", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.blocked, policy.IsBlocked(tt.filename))
		})
	}
}

func TestNewExtensionPolicy_NormalizesEntries(t *testing.T) {
	policy := NewExtensionPolicy([]string{"EXE", " .Scr ", ""})

	assert.True(t, policy.IsBlocked("a.exe"))
	assert.True(t, policy.IsBlocked("b.scr"))
	assert.False(t, policy.IsBlocked("c.txt"))
}
