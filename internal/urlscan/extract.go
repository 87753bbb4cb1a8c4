package urlscan

import (
	"regexp"
	"strings"

	"github.com/mikey/chat-sentinel/internal/textutil"
)

// urlPattern matches http/https URLs in free text. Delimiters that
// commonly wrap pasted links (brackets, quotes, angle brackets) end the
// match so surrounding markup is not swallowed.
var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>'"(){}\[\]]+`)

// maxURLLength caps extracted candidates; anything longer is dropped as
// noise rather than truncated into a different URL.
const maxURLLength = 2000

// trailingPunctuation is stripped from match tails so a link ending a
// sentence does not carry its punctuation into the scan.
const trailingPunctuation = "),.!?"

// Extract returns the URLs found in text in first-seen order with exact
// duplicates removed. Malformed input never fails; no matches yields an
// empty result.
func Extract(text string) []string {
	if text == "" {
		return nil
	}
	text = textutil.SanitizeUTF8(text)

	seen := make(map[string]struct{})
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		url := strings.TrimRight(m, trailingPunctuation)
		if url == "" || len(url) > maxURLLength {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}
