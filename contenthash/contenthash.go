// Package contenthash computes the content-addressed hash used for
// summary sharing and fallback post deduplication.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/caldera-labs/plume/sanitize"
)

const (
	maxNormalizedBytes = 200 * 1024
	headTailBytes      = 100 * 1024
)

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bread more\b`),
	regexp.MustCompile(`(?i)\bclick here\b`),
	regexp.MustCompile(`(?i)\bshare this\b`),
	regexp.MustCompile(`(?i)\bsubscribe to our newsletter\b`),
	regexp.MustCompile(`(?i)\bfollow us on\b`),
	// Dates like "January 2, 2024" or "2024-01-02".
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|jun(e)?|jul(y)?|aug(ust)?|sep(t|tember)?|oct(ober)?|nov(ember)?|dec(ember)?)\s+\d{1,2},?\s+\d{4}\b`),
	// Times like "3:45 PM".
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(am|pm)?\b`),
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Hash returns the hex-encoded SHA-256 of the normalized text content
// of content, or "" if nothing is left to hash. content may be HTML or
// plain text. Deliberately title- and URL-independent: the summary
// cache is content-addressed so that the same article syndicated
// under two different feeds (and, sometimes, two slightly different
// headlines) shares one cached summary.
func Hash(content string) string {
	text := normalize(content)
	if text == "" {
		return ""
	}

	if len(text) > maxNormalizedBytes {
		text = text[:headTailBytes] + text[len(text)-headTailBytes:]
	}

	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// normalize extracts plain text from content, lowercases it, strips
// known boilerplate phrases, and collapses whitespace.
func normalize(content string) string {
	text := sanitize.ExtractText(content)
	text = strings.ToLower(text)
	for _, re := range boilerplatePatterns {
		text = re.ReplaceAllString(text, " ")
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
