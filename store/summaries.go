package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// GetSummaryByHash returns the shared summary for a content hash, or
// ErrNotFound if no summary has been generated for it yet. Identical
// content across feeds/posts shares one row.
func (s *Store) GetSummaryByHash(ctx context.Context, contentHash string) (*AISummary, error) {
	var a AISummary
	err := s.db.GetContext(ctx, &a, "SELECT * FROM ai_summaries WHERE content_hash = ?", contentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get summary %s: %w", contentHash, err)
	}
	return &a, nil
}

// SaveSummary inserts or replaces the summary for a content hash.
func SaveSummary(ctx context.Context, tx *sqlx.Tx, a *AISummary) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ai_summaries (content_hash, summary_text, one_line_summary, translated_title, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			summary_text = excluded.summary_text,
			one_line_summary = excluded.one_line_summary,
			translated_title = excluded.translated_title,
			tags = excluded.tags`,
		a.ContentHash, a.SummaryText, a.OneLineSummary, a.TranslatedTitle, a.TagsJSON, now())
	if err != nil {
		return fmt.Errorf("store: save summary %s: %w", a.ContentHash, err)
	}
	return nil
}
