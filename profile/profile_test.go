package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/httpclient"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plume.db")
	s, err := store.Open(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBuilder(s *store.Store) *Builder {
	client := llm.NewClient(httpclient.NewPool(), s, zerolog.Nop(), "https://example.invalid", "gpt-test", 20, 5*time.Second, nil, 0)
	return New(s, client, "./testdata/nonexistent-prompts.yaml", zerolog.Nop())
}

func TestRebuildSkipsWhenNotStale(t *testing.T) {
	s := openTestStore(t)
	b := newTestBuilder(s)

	rebuilt, err := b.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if rebuilt {
		t.Fatalf("expected no rebuild without a stale flag")
	}
}

func TestRebuildSkipsWhenNotEnoughLikedPosts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b := newTestBuilder(s)

	if err := b.MarkStale(ctx); err != nil {
		t.Fatalf("MarkStale: %v", err)
	}

	rebuilt, err := b.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if rebuilt {
		t.Fatalf("expected no rebuild with zero liked posts")
	}
}

func TestNormalizeTagsDedupesAndLowercases(t *testing.T) {
	got := normalizeTags([]string{"Go", "go", " Rust ", ""})
	want := []string{"go", "rust"}
	if len(got) != len(want) {
		t.Fatalf("normalizeTags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeTags = %v, want %v", got, want)
		}
	}
}
