package ingest

import "testing"

func TestLooksLikeHostnamePlaceholder(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"example.com", true},
		{"blog.example.com", true},
		{"My Real Feed Title", false},
		{"example.com/path", false},
	}
	for _, tc := range tests {
		if got := looksLikeHostnamePlaceholder(tc.title); got != tc.want {
			t.Fatalf("looksLikeHostnamePlaceholder(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}
