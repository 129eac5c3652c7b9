// Package retention runs the scheduled cleanup pass over aged posts.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/store"
)

// fullContentRetentionDays is the fixed window (independent of
// maxPostAgeDays) after which a read post's full_content is cleared.
const fullContentRetentionDays = 30

// Runner performs one retention pass per Run call.
type Runner struct {
	store          *store.Store
	maxPostAgeDays int
	maxUnreadDays  int
	logger         zerolog.Logger
}

// New builds a Runner.
func New(st *store.Store, maxPostAgeDays, maxUnreadDays int, logger zerolog.Logger) *Runner {
	return &Runner{
		store:          st,
		maxPostAgeDays: maxPostAgeDays,
		maxUnreadDays:  maxUnreadDays,
		logger:         logger.With().Str("component", "retention").Logger(),
	}
}

// Run deletes read posts older than maxPostAgeDays, unread posts older
// than maxUnreadDays, clears full_content for posts read more than 30
// days ago (a fixed cutoff, independent of maxPostAgeDays), and records
// the pass in cleanup_log.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()

	readCutoff := start.AddDate(0, 0, -r.maxPostAgeDays)
	unreadCutoff := start.AddDate(0, 0, -r.maxUnreadDays)
	fullContentCutoff := start.AddDate(0, 0, -fullContentRetentionDays)

	readDeleted, err := r.store.DeleteReadPostsOlderThan(ctx, readCutoff)
	if err != nil {
		return err
	}
	unreadDeleted, err := r.store.DeleteUnreadPostsOlderThan(ctx, unreadCutoff)
	if err != nil {
		return err
	}
	cleared, err := r.store.ClearFullContentOlderThan(ctx, fullContentCutoff)
	if err != nil {
		return err
	}

	entry := store.CleanupLogEntry{
		RanAt:              start,
		PostsDeleted:       readDeleted + unreadDeleted,
		FullContentCleared: cleared,
		DurationSeconds:    time.Since(start).Seconds(),
	}
	if err := r.store.RecordCleanup(ctx, entry); err != nil {
		return err
	}

	r.logger.Info().
		Int("read_deleted", readDeleted).
		Int("unread_deleted", unreadDeleted).
		Int("full_content_cleared", cleared).
		Dur("elapsed", time.Since(start)).
		Msg("retention pass complete")
	return nil
}
