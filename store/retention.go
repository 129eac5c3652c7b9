package store

import (
	"context"
	"fmt"
)

// DeleteReadPostsOlderThan removes read, unstarred posts whose read_at
// is older than the cutoff, and returns the number removed.
func (s *Store) DeleteReadPostsOlderThan(ctx context.Context, cutoff interface{}) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM posts
		WHERE is_read = 1 AND is_starred = 0 AND read_at IS NOT NULL AND read_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete read posts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteUnreadPostsOlderThan removes unread, unstarred posts whose
// fetched_at is older than the cutoff (a longer retention window than
// read posts get).
func (s *Store) DeleteUnreadPostsOlderThan(ctx context.Context, cutoff interface{}) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM posts
		WHERE is_read = 0 AND is_starred = 0 AND fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete unread posts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClearFullContentOlderThan nulls out full_content for read, unstarred
// posts whose read_at is older than the cutoff, freeing space while
// keeping the short-content summary available.
func (s *Store) ClearFullContentOlderThan(ctx context.Context, cutoff interface{}) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET full_content = NULL
		WHERE is_read = 1 AND is_starred = 0 AND full_content IS NOT NULL AND read_at IS NOT NULL AND read_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: clear full content: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
