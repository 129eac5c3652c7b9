package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReplacePostTags deletes a post's existing tags and inserts the given
// set, used whenever a summary is (re)generated and the model returns
// a fresh tag list.
func ReplacePostTags(ctx context.Context, tx *sqlx.Tx, postID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM post_tags WHERE post_id = ?", postID); err != nil {
		return fmt.Errorf("store: clear post tags %d: %w", postID, err)
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO post_tags (post_id, tag) VALUES (?, ?)
			ON CONFLICT(post_id, tag) DO NOTHING`, postID, tag); err != nil {
			return fmt.Errorf("store: insert post tag %d/%s: %w", postID, tag, err)
		}
	}
	return nil
}

// TagOverlapCount returns, for each post ID in candidateIDs, the
// number of tags it shares with the given profile tag set — the score
// the suggestion matcher filters and sorts on.
func (s *Store) TagOverlapCount(ctx context.Context, candidateIDs []int64, profileTags []string) (map[int64]int, error) {
	overlap := make(map[int64]int, len(candidateIDs))
	if len(candidateIDs) == 0 || len(profileTags) == 0 {
		return overlap, nil
	}

	query, args, err := sqlx.In(`
		SELECT post_id, tag FROM post_tags
		WHERE post_id IN (?) AND tag IN (?)`, candidateIDs, profileTags)
	if err != nil {
		return nil, fmt.Errorf("store: tag overlap query: %w", err)
	}
	query = s.db.Rebind(query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: tag overlap: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID int64
		var tag string
		if err := rows.Scan(&postID, &tag); err != nil {
			return nil, fmt.Errorf("store: tag overlap scan: %w", err)
		}
		overlap[postID]++
	}
	return overlap, rows.Err()
}
