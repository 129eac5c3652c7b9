// Package sanitize strips unsafe markup from feed and extracted page
// content, producing either safe HTML or plain text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const defaultTruncateLimit = 500

var policy = buildPolicy()

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	// Structure + inline + tables + images + links.
	p.AllowElements(
		"p", "div", "span", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote", "pre", "code",
		"b", "strong", "i", "em", "u", "s", "strike", "del", "ins", "sub", "sup",
		"table", "thead", "tbody", "tr", "td", "th",
		"figure", "figcaption",
	)
	p.AllowAttrs("class", "id").Globally()

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	p.AllowImages()

	// href: http, https, relative, and fragment anchors.
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(true)
	p.AllowDataURIImages()

	// src on img is restricted further after sanitizing (bluemonday's
	// global scheme allow-list can't special-case data: to one element
	// only), so img src is validated by dropUnsafeImageSrc.
	p.RequireNoFollowOnLinks(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return p
}

var imgSrcDataPrefix = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)

// Sanitize strips unsafe markup from html down to a fixed allow-listed
// tag/attribute set. Every <a> is rewritten to carry
// rel="noopener noreferrer" target="_blank". When truncate is true, the
// result is capped to 500 characters at a safe (non-mid-tag) boundary
// with a trailing ellipsis.
func Sanitize(html string, truncate bool) string {
	cleaned := policy.Sanitize(html)
	cleaned = rewriteAnchors(cleaned)
	cleaned = dropUnsafeImageSrc(cleaned)

	if truncate {
		cleaned = TruncateHTML(cleaned, defaultTruncateLimit)
	}
	return strings.TrimSpace(cleaned)
}

var anchorTagRe = regexp.MustCompile(`(?i)<a\s+([^>]*)>`)
var relAttrRe = regexp.MustCompile(`(?i)\s(rel|target)="[^"]*"`)

// rewriteAnchors forces rel="noopener noreferrer" target="_blank" onto
// every anchor tag, replacing any rel/target bluemonday preserved.
func rewriteAnchors(html string) string {
	return anchorTagRe.ReplaceAllStringFunc(html, func(tag string) string {
		attrs := anchorTagRe.FindStringSubmatch(tag)[1]
		attrs = relAttrRe.ReplaceAllString(" "+attrs, "")
		return `<a ` + strings.TrimSpace(attrs) + ` rel="noopener noreferrer" target="_blank">`
	})
}

var imgTagRe = regexp.MustCompile(`(?i)<img\s+([^>]*)src="([^"]*)"([^>]*)>`)

// dropUnsafeImageSrc enforces that <img src> is https or a data:image/*
// URI; anything else (notably http://, which would create a mixed
// content warning) is stripped, leaving the <img> without a src.
func dropUnsafeImageSrc(html string) string {
	return imgTagRe.ReplaceAllStringFunc(html, func(tag string) string {
		m := imgTagRe.FindStringSubmatch(tag)
		src := m[2]
		if strings.HasPrefix(src, "https://") || imgSrcDataPrefix.MatchString(src) {
			return tag
		}
		return `<img ` + strings.TrimSpace(m[1]+m[3]) + `>`
	})
}

var tagRe = regexp.MustCompile(`<[^>]*>?`)

// TruncateHTML caps html to limit runes measured over its plain-text
// content, cutting at the nearest preceding safe boundary (never inside
// a tag) and appending an ellipsis when truncated.
func TruncateHTML(html string, limit int) string {
	text := ExtractText(html)
	if utf8.RuneCountInString(text) <= limit {
		return html
	}

	// Walk the original markup, counting only text-node runes, and stop
	// as soon as the visible-text budget is exhausted, never inside a
	// tag.
	var b strings.Builder
	count := 0
	i := 0
	for i < len(html) {
		loc := tagRe.FindStringIndex(html[i:])
		var textChunk, tagChunk string
		if loc == nil {
			textChunk = html[i:]
			i = len(html)
		} else {
			textChunk = html[i : i+loc[0]]
			tagChunk = html[i+loc[0] : i+loc[1]]
			i += loc[1]
		}
		for _, r := range textChunk {
			if count >= limit {
				break
			}
			b.WriteRune(r)
			count++
		}
		if count >= limit {
			break
		}
		b.WriteString(tagChunk)
	}
	return b.String() + "…"
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// ExtractText returns the plain-text content of html with all tags
// removed and whitespace collapsed.
func ExtractText(html string) string {
	stripped := tagRe.ReplaceAllString(html, " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(stripped, " "))
}
