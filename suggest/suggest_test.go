package suggest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/httpclient"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/profile"
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

func newTestEngine(s *store.Store) *Engine {
	client := llm.NewClient(httpclient.NewPool(), s, zerolog.Nop(), "https://example.invalid", "gpt-test", 20, 5*time.Second, nil, 0)
	pb := profile.New(s, client, "./testdata/nonexistent-prompts.yaml", zerolog.Nop())
	return New(s, client, pb, "./testdata/nonexistent-prompts.yaml", zerolog.Nop())
}

func TestRunNoopWithoutProfile(t *testing.T) {
	s := openTestStore(t)
	e := newTestEngine(s)

	marked, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if marked != 0 {
		t.Fatalf("expected no matches without a profile, got %d", marked)
	}
}

func TestRunNoopWithoutCandidates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SetSetting(ctx, "user_profile", "reads about distributed systems"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "user_profile_tags", `["go","databases"]`); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	e := newTestEngine(s)
	marked, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if marked != 0 {
		t.Fatalf("expected no matches with zero candidates, got %d", marked)
	}
}
