package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// CreateFeed inserts a new feed and returns its assigned ID.
func (s *Store) CreateFeed(ctx context.Context, f *Feed) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (category_id, title, source_url, site_url, allow_duplicate_urls)
		VALUES (?, ?, ?, ?, ?)`,
		f.CategoryID, f.Title, f.SourceURL, f.SiteURL, f.AllowDuplicateURLs)
	if err != nil {
		return 0, fmt.Errorf("store: create feed: %w", err)
	}
	return res.LastInsertId()
}

// GetFeed returns one feed by ID.
func (s *Store) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	var f Feed
	err := s.db.GetContext(ctx, &f, "SELECT * FROM feeds WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get feed %d: %w", id, err)
	}
	return &f, nil
}

// ListFeeds returns every configured feed, ordered by title.
func (s *Store) ListFeeds(ctx context.Context) ([]Feed, error) {
	var feeds []Feed
	err := s.db.SelectContext(ctx, &feeds, "SELECT * FROM feeds ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("store: list feeds: %w", err)
	}
	return feeds, nil
}

// EligibleFeeds returns up to limit feeds due for a fetch: not
// disabled, and with no pending backoff or one that has already
// elapsed, ordered by ascending error_count so chronically failing
// feeds do not starve healthy ones of a cycle's fetch budget.
func (s *Store) EligibleFeeds(ctx context.Context, limit int) ([]Feed, error) {
	var feeds []Feed
	err := s.db.SelectContext(ctx, &feeds, `
		SELECT * FROM feeds
		WHERE disabled_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY error_count ASC, id ASC
		LIMIT ?`, now(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: eligible feeds: %w", err)
	}
	return feeds, nil
}

// RecordFeedSuccess clears any error/backoff state and stamps the
// fetch time.
func (s *Store) RecordFeedSuccess(ctx context.Context, feedID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds
		SET last_fetched_at = ?, error_count = 0, last_error = NULL,
		    last_error_at = NULL, next_retry_at = NULL
		WHERE id = ?`, now(), feedID)
	if err != nil {
		return fmt.Errorf("store: record feed success %d: %w", feedID, err)
	}
	return nil
}

// backoffSchedule maps the feed's error_count (after increment) to the
// delay before the next retry attempt. Past the last entry the final
// delay repeats.
var backoffSchedule = []struct {
	afterFailures int
	delay         string
}{
	{1, "+5 minutes"},
	{2, "+15 minutes"},
	{3, "+1 hour"},
	{4, "+6 hours"},
	{5, "+24 hours"},
}

// RecordFeedError increments the failure counter, records the error
// text, and schedules next_retry_at using an escalating backoff. It
// never disables the feed; DisableFeed is separate and nothing calls
// it automatically.
func (s *Store) RecordFeedError(ctx context.Context, feedID int64, errMsg string) error {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT error_count FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("store: record feed error %d: read count: %w", feedID, err)
	}
	count++

	delay := backoffSchedule[len(backoffSchedule)-1].delay
	for _, step := range backoffSchedule {
		if count <= step.afterFailures {
			delay = step.delay
			break
		}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE feeds
		SET error_count = ?, last_error = ?, last_error_at = ?,
		    next_retry_at = datetime(?, ?)
		WHERE id = ?`, count, errMsg, now(), now(), delay, feedID)
	if err != nil {
		return fmt.Errorf("store: record feed error %d: %w", feedID, err)
	}
	return nil
}

// DisableFeed marks a feed as permanently unfetchable until a human
// re-enables it.
func (s *Store) DisableFeed(ctx context.Context, feedID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET disabled_at = ?, disabled_reason = ? WHERE id = ?`,
		now(), reason, feedID)
	if err != nil {
		return fmt.Errorf("store: disable feed %d: %w", feedID, err)
	}
	return nil
}

// EnableFeed clears disablement and any accumulated error state.
func (s *Store) EnableFeed(ctx context.Context, feedID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds
		SET disabled_at = NULL, disabled_reason = NULL, error_count = 0,
		    last_error = NULL, last_error_at = NULL, next_retry_at = NULL
		WHERE id = ?`, feedID)
	if err != nil {
		return fmt.Errorf("store: enable feed %d: %w", feedID, err)
	}
	return nil
}

// UpdateFeedTitle overwrites the stored title, used when the feed was
// created with a hostname placeholder and the real <title> only
// becomes known after the first successful fetch.
func (s *Store) UpdateFeedTitle(ctx context.Context, feedID int64, title, siteURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET title = ?, site_url = ? WHERE id = ?`, title, siteURL, feedID)
	if err != nil {
		return fmt.Errorf("store: update feed title %d: %w", feedID, err)
	}
	return nil
}

// MarkGuidUnreliable flips the feed's guid_unreliable flag, used once
// enough GUID collisions have been observed from the same feed to
// suspect the publisher reuses GUIDs across distinct articles.
func (s *Store) MarkGuidUnreliable(ctx context.Context, feedID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE feeds SET guid_unreliable = 1 WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("store: mark guid unreliable %d: %w", feedID, err)
	}
	return nil
}

// IncrementGuidCollisionCount bumps the feed's observed-collision
// counter and returns the new value, so the caller can compare it
// against the unreliability threshold.
func (s *Store) IncrementGuidCollisionCount(ctx context.Context, feedID int64) (int, error) {
	_, err := s.db.ExecContext(ctx, "UPDATE feeds SET guid_collision_count = guid_collision_count + 1 WHERE id = ?", feedID)
	if err != nil {
		return 0, fmt.Errorf("store: increment guid collision count %d: %w", feedID, err)
	}
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT guid_collision_count FROM feeds WHERE id = ?", feedID); err != nil {
		return 0, fmt.Errorf("store: read guid collision count %d: %w", feedID, err)
	}
	return count, nil
}

// DeleteFeed removes a feed and, via ON DELETE CASCADE, all of its posts.
func (s *Store) DeleteFeed(ctx context.Context, feedID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("store: delete feed %d: %w", feedID, err)
	}
	return nil
}
