package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

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

func TestRunDeletesAgedReadPosts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, err := s.CreateFeed(ctx, &store.Feed{Title: "feed", SourceURL: "https://example.com/feed.xml"})
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	old := time.Now().AddDate(0, 0, -60)
	var postID int64
	err = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := store.InsertPost(ctx, tx, &store.Post{
			FeedID:      feedID,
			OriginalURL: "https://example.com/a",
			Title:       "A",
			PublishedAt: &old,
		})
		postID = id
		return err
	})
	if err != nil {
		t.Fatalf("InsertPost: %v", err)
	}
	if err := s.SetRead(ctx, postID, true); err != nil {
		t.Fatalf("SetRead: %v", err)
	}
	if err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE posts SET read_at = ? WHERE id = ?", old, postID)
		return err
	}); err != nil {
		t.Fatalf("backdate read_at: %v", err)
	}

	r := New(s, 30, 90, zerolog.Nop())
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := s.GetPost(ctx, postID); err != store.ErrNotFound {
		t.Fatalf("expected aged read post to be deleted, got err=%v", err)
	}
}

func TestRunKeepsStarredPosts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, _ := s.CreateFeed(ctx, &store.Feed{Title: "feed", SourceURL: "https://example.com/feed2.xml"})
	old := time.Now().AddDate(0, 0, -60)
	var postID int64
	_ = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := store.InsertPost(ctx, tx, &store.Post{
			FeedID:      feedID,
			OriginalURL: "https://example.com/b",
			Title:       "B",
			PublishedAt: &old,
		})
		postID = id
		return err
	})
	_ = s.SetRead(ctx, postID, true)
	_ = s.SetStarred(ctx, postID, true)
	_ = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE posts SET read_at = ? WHERE id = ?", old, postID)
		return err
	})

	r := New(s, 30, 90, zerolog.Nop())
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := s.GetPost(ctx, postID); err != nil {
		t.Fatalf("expected starred post to survive retention, got err=%v", err)
	}
}
