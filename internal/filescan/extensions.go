package filescan

import (
	"path/filepath"
	"strings"
)

// DefaultBlockedExtensions are the attachment suffixes refused outright,
// before any download happens
var DefaultBlockedExtensions = []string{
	".exe", ".scr", ".bat", ".cmd", ".js", ".vbs", ".jar",
}

// ExtensionPolicy is a case-insensitive suffix denylist over filenames
type ExtensionPolicy struct {
	blocked map[string]struct{}
}

// NewExtensionPolicy creates a policy from a list of extensions; entries
// are normalized to a lowercase ".ext" form
func NewExtensionPolicy(extensions []string) *ExtensionPolicy {
	blocked := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		blocked[ext] = struct{}{}
	}
	return &ExtensionPolicy{blocked: blocked}
}

// IsBlocked reports whether the filename carries a denylisted extension
func (p *ExtensionPolicy) IsBlocked(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	_, ok := p.blocked[ext]
	return ok
}

// Ext returns the normalized extension of filename
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
