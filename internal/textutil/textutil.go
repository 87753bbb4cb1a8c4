package textutil

import "unicode/utf8"

// SanitizeUTF8 strips invalid UTF-8 sequences from untrusted chat text
// so downstream regex matching and persistence see valid strings only
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				// Skip invalid UTF-8 sequences
				continue
			}
		}
		result = append(result, r)
	}
	return string(result)
}

// Truncate limits text to maxSize bytes without splitting a rune. A
// non-positive maxSize disables truncation.
func Truncate(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}
