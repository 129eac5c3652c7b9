package sanitize

import (
	"strings"
	"testing"
)

func TestSanitizeStripsScripts(t *testing.T) {
	out := Sanitize(`<p>hi</p><script>alert(1)</script>`, false)
	if strings.Contains(out, "<script") {
		t.Fatalf("script tag survived sanitization: %q", out)
	}
}

func TestSanitizeStripsEventHandlers(t *testing.T) {
	out := Sanitize(`<p onclick="evil()">hi</p>`, false)
	if strings.Contains(out, "onclick") {
		t.Fatalf("event handler attribute survived: %q", out)
	}
}

func TestSanitizeRejectsJavascriptURLs(t *testing.T) {
	out := Sanitize(`<a href="javascript:alert(1)">click</a>`, false)
	if strings.Contains(out, "javascript:") {
		t.Fatalf("javascript: URL survived: %q", out)
	}
}

func TestSanitizeRejectsHTTPImageSrc(t *testing.T) {
	out := Sanitize(`<img src="http://example.com/x.png" alt="x">`, false)
	if strings.Contains(out, "http://example.com") {
		t.Fatalf("http image src survived: %q", out)
	}
}

func TestSanitizeAllowsHTTPSAndDataImageSrc(t *testing.T) {
	out := Sanitize(`<img src="https://example.com/x.png" alt="x">`, false)
	if !strings.Contains(out, "https://example.com/x.png") {
		t.Fatalf("https image src was stripped: %q", out)
	}
	out = Sanitize(`<img src="data:image/png;base64,iVBORw0KGgo=" alt="x">`, false)
	if !strings.Contains(out, "data:image/png;base64,iVBORw0KGgo=") {
		t.Fatalf("data:image src was stripped: %q", out)
	}
}

func TestSanitizeForcesAnchorRelTarget(t *testing.T) {
	out := Sanitize(`<a href="https://example.com">link</a>`, false)
	if !strings.Contains(out, `rel="noopener noreferrer"`) || !strings.Contains(out, `target="_blank"`) {
		t.Fatalf("anchor missing forced rel/target: %q", out)
	}
}

func TestSanitizeTruncatesAtSafeBoundary(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 200) + "</p>"
	out := Sanitize(long, true)
	if !strings.HasSuffix(out, "…") {
		t.Fatalf("truncated output missing ellipsis: %q", out[len(out)-20:])
	}
	if strings.Contains(out, "<p>word…") == false && strings.Count(out, "<") != strings.Count(out, ">") {
		t.Fatalf("truncation cut inside a tag: %q", out)
	}
}

func TestExtractTextCollapsesWhitespace(t *testing.T) {
	got := ExtractText("<p>hello\n\n  <b>world</b></p>")
	if got != "hello world" {
		t.Fatalf("ExtractText = %q, want %q", got, "hello world")
	}
}
