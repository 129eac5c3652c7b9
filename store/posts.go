package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// FindPostByGuid looks up an existing post by (feed_id, guid). Returns
// ErrNotFound when no match exists.
func (s *Store) FindPostByGuid(ctx context.Context, feedID int64, guid string) (*Post, error) {
	return s.findPostBy(ctx, "feed_id = ? AND guid = ?", feedID, guid)
}

// FindPostByNormalizedURL looks up an existing post by (feed_id,
// normalized_url).
func (s *Store) FindPostByNormalizedURL(ctx context.Context, feedID int64, normalizedURL string) (*Post, error) {
	return s.findPostBy(ctx, "feed_id = ? AND normalized_url = ?", feedID, normalizedURL)
}

// FindPostByContentHash looks up an existing post by (feed_id,
// content_hash), the dedup fallback used when a feed supplies neither
// a usable GUID nor a resolvable article URL.
func (s *Store) FindPostByContentHash(ctx context.Context, feedID int64, hash string) (*Post, error) {
	return s.findPostBy(ctx, "feed_id = ? AND content_hash = ?", feedID, hash)
}

// FindAnyPostByContentHash looks up a post by content hash alone,
// across all feeds. Used by the admin reprocess-summary operation,
// which identifies its target by content hash rather than post id.
func (s *Store) FindAnyPostByContentHash(ctx context.Context, hash string) (*Post, error) {
	return s.findPostBy(ctx, "content_hash = ?", hash)
}

func (s *Store) findPostBy(ctx context.Context, where string, args ...interface{}) (*Post, error) {
	var p Post
	query := "SELECT * FROM posts WHERE " + where + " LIMIT 1"
	err := s.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find post: %w", err)
	}
	return &p, nil
}

// InsertPost inserts a new post inside tx and returns its assigned ID.
// fetched_at is the current time; sort_date is published_at when
// present, falling back to the current time.
func InsertPost(ctx context.Context, tx *sqlx.Tx, p *Post) (int64, error) {
	sortDate := now()
	if p.PublishedAt != nil {
		sortDate = *p.PublishedAt
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO posts (
			feed_id, guid, original_url, normalized_url, title, author,
			short_content, full_content, content_hash, published_at,
			fetched_at, sort_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FeedID, p.GUID, p.OriginalURL, p.NormalizedURL, p.Title, p.Author,
		p.ShortContent, p.FullContent, p.ContentHash, p.PublishedAt,
		now(), sortDate)
	if err != nil {
		return 0, fmt.Errorf("store: insert post: %w", err)
	}
	return res.LastInsertId()
}

// GetPost returns one post by ID.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	var p Post
	err := s.db.GetContext(ctx, &p, "SELECT * FROM posts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get post %d: %w", id, err)
	}
	return &p, nil
}

// ListPostsByFeed returns posts for a feed, most recent first, capped
// to limit rows.
func (s *Store) ListPostsByFeed(ctx context.Context, feedID int64, limit int) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, `
		SELECT * FROM posts WHERE feed_id = ? ORDER BY sort_date DESC LIMIT ?`, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list posts by feed %d: %w", feedID, err)
	}
	return posts, nil
}

// SetFullContent stores extracted full-content text and its hash (a
// non-empty hash replaces the post's content_hash), and stamps the
// extraction attempt time. It is called after a successful extraction;
// MarkFullContentAttempted covers the failed case.
func (s *Store) SetFullContent(ctx context.Context, postID int64, content, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET full_content = ?, content_hash = COALESCE(NULLIF(?, ''), content_hash),
		    fetch_full_attempted_at = ?
		WHERE id = ?`, content, hash, now(), postID)
	if err != nil {
		return fmt.Errorf("store: set full content %d: %w", postID, err)
	}
	return nil
}

// MarkFullContentAttempted stamps the attempt time without changing
// content, used when extraction failed.
func (s *Store) MarkFullContentAttempted(ctx context.Context, postID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE posts SET fetch_full_attempted_at = ? WHERE id = ?", now(), postID)
	if err != nil {
		return fmt.Errorf("store: mark full content attempted %d: %w", postID, err)
	}
	return nil
}

// SetRead toggles the read flag and stamps or clears read_at.
func (s *Store) SetRead(ctx context.Context, postID int64, read bool) error {
	var readAt interface{}
	if read {
		readAt = now()
	}
	_, err := s.db.ExecContext(ctx, "UPDATE posts SET is_read = ?, read_at = ? WHERE id = ?", read, readAt, postID)
	if err != nil {
		return fmt.Errorf("store: set read %d: %w", postID, err)
	}
	return nil
}

// SetStarred toggles the starred flag. Starred posts are exempt from
// retention cleanup.
func (s *Store) SetStarred(ctx context.Context, postID int64, starred bool) error {
	var starredAt interface{}
	if starred {
		starredAt = now()
	}
	_, err := s.db.ExecContext(ctx, "UPDATE posts SET is_starred = ?, starred_at = ? WHERE id = ?", starred, starredAt, postID)
	if err != nil {
		return fmt.Errorf("store: set starred %d: %w", postID, err)
	}
	return nil
}

// SetLiked toggles the liked flag. Liked posts feed the profile
// builder's training set.
func (s *Store) SetLiked(ctx context.Context, postID int64, liked bool) error {
	var likedAt interface{}
	if liked {
		likedAt = now()
	}
	_, err := s.db.ExecContext(ctx, "UPDATE posts SET is_liked = ?, liked_at = ? WHERE id = ?", liked, likedAt, postID)
	if err != nil {
		return fmt.Errorf("store: set liked %d: %w", postID, err)
	}
	return nil
}

// MarkSuggested records a suggestion score for a post that crossed the
// personalization threshold.
func (s *Store) MarkSuggested(ctx context.Context, postID int64, score int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET is_suggested = 1, suggestion_score = ?, suggested_at = ?
		WHERE id = ?`, score, now(), postID)
	if err != nil {
		return fmt.Errorf("store: mark suggested %d: %w", postID, err)
	}
	return nil
}

// LikedPostsWithSummary returns up to limit liked posts that already
// have an AI summary, most recently liked first — the training set
// for the personalization profile builder.
func (s *Store) LikedPostsWithSummary(ctx context.Context, limit int) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, `
		SELECT p.* FROM posts p
		JOIN ai_summaries a ON a.content_hash = p.content_hash
		WHERE p.is_liked = 1 AND p.content_hash IS NOT NULL
		ORDER BY p.liked_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: liked posts with summary: %w", err)
	}
	return posts, nil
}

// SuggestionCandidates returns posts fetched within the lookback
// window that have a summary but have not yet been suggested, read, or
// liked — the candidate pool for the tag-overlap matcher.
func (s *Store) SuggestionCandidates(ctx context.Context, since interface{}) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, `
		SELECT p.* FROM posts p
		WHERE p.content_hash IS NOT NULL
		  AND EXISTS (SELECT 1 FROM ai_summaries a WHERE a.content_hash = p.content_hash)
		  AND p.fetched_at >= ?
		  AND p.is_suggested = 0
		  AND p.is_read = 0
		  AND p.is_liked = 0
		ORDER BY p.fetched_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("store: suggestion candidates: %w", err)
	}
	return posts, nil
}

// PostTags returns the tag set attached to a post.
func (s *Store) PostTags(ctx context.Context, postID int64) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags, "SELECT tag FROM post_tags WHERE post_id = ?", postID)
	if err != nil {
		return nil, fmt.Errorf("store: post tags %d: %w", postID, err)
	}
	return tags, nil
}
