package extract

import "testing"

func TestIsCloudflareChallenge(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   bool
	}{
		{403, "", true},
		{503, "", true},
		{200, "<html><body>Just a moment...</body></html>", true},
		{200, "<html><body>Welcome to the article</body></html>", false},
		{404, "", false},
	}
	for _, tc := range tests {
		if got := isCloudflareChallenge(tc.status, tc.body); got != tc.want {
			t.Fatalf("isCloudflareChallenge(%d, %q) = %v, want %v", tc.status, tc.body, got, tc.want)
		}
	}
}

func TestCountAppealMatches(t *testing.T) {
	text := "Please disable your adblock. Sign up for our newsletter to continue."
	if n := countAppealMatches(text); n < maxAppealMatches {
		t.Fatalf("expected at least %d appeal matches, got %d", maxAppealMatches, n)
	}
}

func TestStripNonArticleNoise(t *testing.T) {
	html := `<div>keep</div><div class="cookie-banner">accept cookies</div>`
	out := stripNonArticleNoise(html)
	if out == html {
		t.Fatalf("expected cookie banner div to be stripped")
	}
}
