package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plume.db")
	s, err := Open(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plume.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
}

func TestFeedLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateFeed(ctx, &Feed{Title: "example.com", SourceURL: "https://example.com/feed.xml"})
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	feeds, err := s.EligibleFeeds(ctx, 20)
	if err != nil {
		t.Fatalf("EligibleFeeds: %v", err)
	}
	if len(feeds) != 1 || feeds[0].ID != id {
		t.Fatalf("expected newly created feed to be eligible, got %+v", feeds)
	}

	if err := s.RecordFeedError(ctx, id, "timeout"); err != nil {
		t.Fatalf("RecordFeedError: %v", err)
	}
	f, err := s.GetFeed(ctx, id)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if f.ErrorCount != 1 || f.NextRetryAt == nil {
		t.Fatalf("expected error bookkeeping to be recorded, got %+v", f)
	}

	feeds, err = s.EligibleFeeds(ctx, 20)
	if err != nil {
		t.Fatalf("EligibleFeeds after error: %v", err)
	}
	if len(feeds) != 0 {
		t.Fatalf("expected feed with future next_retry_at to be ineligible, got %d", len(feeds))
	}

	if err := s.RecordFeedSuccess(ctx, id); err != nil {
		t.Fatalf("RecordFeedSuccess: %v", err)
	}
	f, err = s.GetFeed(ctx, id)
	if err != nil {
		t.Fatalf("GetFeed after success: %v", err)
	}
	if f.ErrorCount != 0 || f.NextRetryAt != nil {
		t.Fatalf("expected success to clear error state, got %+v", f)
	}
}

func TestPostDedupLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, err := s.CreateFeed(ctx, &Feed{Title: "feed", SourceURL: "https://example.com/a.xml"})
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	guid := "post-1"
	var postID int64
	err = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := InsertPost(ctx, tx, &Post{
			FeedID:      feedID,
			GUID:        &guid,
			OriginalURL: "https://example.com/a",
			Title:       "A",
		})
		postID = id
		return err
	})
	if err != nil {
		t.Fatalf("InsertPost: %v", err)
	}

	found, err := s.FindPostByGuid(ctx, feedID, guid)
	if err != nil {
		t.Fatalf("FindPostByGuid: %v", err)
	}
	if found.ID != postID {
		t.Fatalf("expected to find post %d, got %d", postID, found.ID)
	}

	if _, err := s.FindPostByGuid(ctx, feedID, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueClaimIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, _ := s.CreateFeed(ctx, &Feed{Title: "feed", SourceURL: "https://example.com/b.xml"})
	var postID int64
	_ = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := InsertPost(ctx, tx, &Post{FeedID: feedID, OriginalURL: "https://example.com/b", Title: "B"})
		postID = id
		return err
	})
	_ = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		return EnqueueSummary(ctx, tx, postID, "hash-1", 0)
	})

	entry, err := s.ClaimNextSummary(ctx, 300*time.Second)
	if err != nil {
		t.Fatalf("ClaimNextSummary: %v", err)
	}
	if entry.PostID != postID {
		t.Fatalf("expected to claim post %d, got %d", postID, entry.PostID)
	}

	if _, err := s.ClaimNextSummary(ctx, 300*time.Second); err != ErrNotFound {
		t.Fatalf("expected locked entry to be unclaimable, got %v", err)
	}

	if err := s.ReleaseSummary(ctx, entry.ID); err != nil {
		t.Fatalf("ReleaseSummary: %v", err)
	}
	if _, err := s.ClaimNextSummary(ctx, 300*time.Second); err != nil {
		t.Fatalf("expected released entry to be claimable again: %v", err)
	}
}

func TestSchedulerLockHandoff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "holder-a", 60*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected holder-a to acquire lock, ok=%v err=%v", ok, err)
	}

	ok, err = s.AcquireLock(ctx, "holder-b", 60*time.Second)
	if err != nil || ok {
		t.Fatalf("expected holder-b to be refused while holder-a is live, ok=%v err=%v", ok, err)
	}

	ok, err = s.Heartbeat(ctx, "holder-a")
	if err != nil || !ok {
		t.Fatalf("expected holder-a heartbeat to succeed, ok=%v err=%v", ok, err)
	}

	if err := s.ReleaseLock(ctx, "holder-a"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	ok, err = s.AcquireLock(ctx, "holder-b", 60*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected holder-b to acquire lock after release, ok=%v err=%v", ok, err)
	}
}

func TestEffectiveSettingFallsBackToDefault(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if v := s.EffectiveSetting(ctx, "max_rpm", "10"); v != "10" {
		t.Fatalf("expected default, got %q", v)
	}
	if err := s.SetSetting(ctx, "max_rpm", "20"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if v := s.EffectiveSetting(ctx, "max_rpm", "10"); v != "20" {
		t.Fatalf("expected override, got %q", v)
	}
}
