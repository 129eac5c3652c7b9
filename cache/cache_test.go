package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestDisabledCacheIsSafeNoop(t *testing.T) {
	c := New("", zerolog.Nop())
	if c.Enabled() {
		t.Fatalf("expected cache to be disabled with empty REDIS_URL")
	}
	if _, ok := c.GetFullContent(context.Background(), "abc"); ok {
		t.Fatalf("expected miss from disabled cache")
	}
	c.SetFullContent(context.Background(), "abc", "content")
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestUnreachableRedisDegradesGracefully(t *testing.T) {
	c := New("redis://127.0.0.1:1", zerolog.Nop())
	if c.Enabled() {
		t.Fatalf("expected cache to be disabled when redis is unreachable")
	}
}
