package llm

import (
	"testing"
	"time"
)

func TestLooksLikeGarbage(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"short", true},
		{"403 Forbidden. Please subscribe to continue reading this premium article about things.", true},
		{"", true},
	}
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	tests = append(tests, struct {
		content string
		want    bool
	}{long, false})

	for _, tc := range tests {
		if got := LooksLikeGarbage(tc.content); got != tc.want {
			t.Fatalf("LooksLikeGarbage(%.20q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestParseJSONObjectStrict(t *testing.T) {
	obj, ok := ParseJSONObject(`{"summary_pt": "hello", "one_line_summary": "hi"}`, nil)
	if !ok {
		t.Fatalf("expected strict parse to succeed")
	}
	if stringField(obj, "summary_pt") != "hello" {
		t.Fatalf("unexpected field value: %v", obj)
	}
}

func TestParseJSONObjectCodeFence(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"summary_pt\": \"x\", \"one_line_summary\": \"y\"}\n```"
	obj, ok := ParseJSONObject(raw, nil)
	if !ok {
		t.Fatalf("expected code-fence parse to succeed")
	}
	if stringField(obj, "one_line_summary") != "y" {
		t.Fatalf("unexpected field value: %v", obj)
	}
}

func TestParseJSONObjectRegexFallback(t *testing.T) {
	raw := `the model said "summary_pt": "broken json {{{ "one_line_summary": "fallback works"`
	obj, ok := ParseJSONObject(raw, summaryFieldPatterns)
	if !ok {
		t.Fatalf("expected regex fallback to succeed")
	}
	if stringField(obj, "one_line_summary") != "fallback works" {
		t.Fatalf("unexpected field value: %v", obj)
	}
}

func TestKeyRotatorSkipsCooldown(t *testing.T) {
	r := NewKeyRotator([]string{"a", "b"}, 0)
	key, idx, ok := r.Next()
	if !ok || key != "a" || idx != 0 {
		t.Fatalf("expected first key a, got %q %d %v", key, idx, ok)
	}
	r.Cooldown("b", time.Minute)
	key, _, ok = r.Next()
	if !ok || key != "a" {
		t.Fatalf("expected cooling key to be skipped, got %q", key)
	}
}

func TestKeyRotatorAllCoolingReturnsFalse(t *testing.T) {
	r := NewKeyRotator([]string{"a"}, 0)
	r.Cooldown("a", time.Minute)
	if _, _, ok := r.Next(); ok {
		t.Fatalf("expected no key available when the only key is cooling")
	}
}
