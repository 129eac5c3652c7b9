package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// EnqueueSummary inserts a new summary_queue row inside tx. Callers
// must check for an existing row first (the table enforces one queue
// entry per post via a UNIQUE constraint on post_id).
func EnqueueSummary(ctx context.Context, tx *sqlx.Tx, postID int64, contentHash string, priority int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO summary_queue (post_id, content_hash, priority, created_at)
		VALUES (?, ?, ?, ?)`, postID, contentHash, priority, now())
	if err != nil {
		return fmt.Errorf("store: enqueue summary for post %d: %w", postID, err)
	}
	return nil
}

// ClaimNextSummary atomically selects and locks the highest-priority
// ready queue entry, ordered by priority DESC, created_at ASC, id ASC.
// An entry is ready when it is unlocked, or its lock is older than
// lockTimeout (a crashed worker's lease is abandoned rather than
// blocking the entry forever), and it is not in cooldown. Returns
// ErrNotFound when no entry is ready, or when another worker locked the
// selected entry first.
func (s *Store) ClaimNextSummary(ctx context.Context, lockTimeout time.Duration) (*QueueEntry, error) {
	var entry QueueEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT * FROM summary_queue
		WHERE (locked_at IS NULL OR locked_at <= ?)
		  AND (cooldown_until IS NULL OR cooldown_until <= ?)
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT 1`, now().Add(-lockTimeout), now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim next summary: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE summary_queue SET locked_at = ?
		WHERE id = ? AND (locked_at IS NULL OR locked_at <= ?)`,
		now(), entry.ID, now().Add(-lockTimeout))
	if err != nil {
		return nil, fmt.Errorf("store: lock queue entry %d: %w", entry.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: lock queue entry %d: %w", entry.ID, err)
	}
	if affected == 0 {
		// Lost a race with another worker; caller should retry.
		return nil, ErrNotFound
	}
	return &entry, nil
}

// ReleaseSummary unlocks a queue entry without recording an attempt,
// used when the post lookup fails or every API key is in cooldown.
func (s *Store) ReleaseSummary(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE summary_queue SET locked_at = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: release summary %d: %w", id, err)
	}
	return nil
}

// CompleteSummary removes a queue entry without generating a summary,
// used when the content hash already has one or the post was deleted or
// already read.
func (s *Store) CompleteSummary(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM summary_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: complete summary %d: %w", id, err)
	}
	return nil
}

// CooldownSummary unlocks a queue entry and schedules it to become
// ready again after cooldownSeconds, without counting it as a failed
// attempt. The queue worker does not call it.
func (s *Store) CooldownSummary(ctx context.Context, id int64, cooldownSeconds int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE summary_queue
		SET locked_at = NULL, cooldown_until = datetime(?, '+' || ? || ' seconds')
		WHERE id = ?`, now(), cooldownSeconds, id)
	if err != nil {
		return fmt.Errorf("store: cooldown summary %d: %w", id, err)
	}
	return nil
}

// EscalateToCooldown records the error, resets the attempt counter to
// zero, and schedules the entry to become ready again after
// cooldownSeconds — used when a temporary failure has exhausted its
// retries and needs a long rest instead of an immediate retry.
func (s *Store) EscalateToCooldown(ctx context.Context, id int64, errMsg string, cooldownSeconds int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE summary_queue
		SET locked_at = NULL, attempts = 0, last_error = ?, error_type = ?,
		    cooldown_until = datetime(?, '+' || ? || ' seconds')
		WHERE id = ?`, errMsg, string(ErrorTypeTemporary), now(), cooldownSeconds, id)
	if err != nil {
		return fmt.Errorf("store: escalate to cooldown %d: %w", id, err)
	}
	return nil
}

// RetrySummary unlocks a queue entry, increments its attempt count,
// and records the error, used for a temporary or permanent failure
// that has not reached the attempt limit. errorType is stored verbatim ("temporary" or "permanent")
// so the caller can later decide whether to archive instead of retry.
func (s *Store) RetrySummary(ctx context.Context, id int64, errMsg string, errorType ErrorType) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE summary_queue
		SET locked_at = NULL, attempts = attempts + 1, last_error = ?, error_type = ?
		WHERE id = ?`, errMsg, string(errorType), id)
	if err != nil {
		return fmt.Errorf("store: retry summary %d: %w", id, err)
	}
	return nil
}

// ArchiveSummaryFailure records a permanently-failed content hash in
// summary_failures and removes its queue entry, so the backfill sweep
// does not re-enqueue posts with an identical hash. The ingestor does
// not consult summary_failures when enqueueing new posts.
func (s *Store) ArchiveSummaryFailure(ctx context.Context, queueID int64, contentHash, errMsg string) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO summary_failures (content_hash, last_error, failed_at)
			VALUES (?, ?, ?)
			ON CONFLICT(content_hash) DO UPDATE SET last_error = excluded.last_error, failed_at = excluded.failed_at`,
			contentHash, errMsg, now()); err != nil {
			return fmt.Errorf("store: archive summary failure %s: %w", contentHash, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM summary_queue WHERE id = ?", queueID); err != nil {
			return fmt.Errorf("store: remove failed queue entry %d: %w", queueID, err)
		}
		return nil
	})
}

// HasSummaryFailure reports whether contentHash has already been
// archived as a permanent failure.
func (s *Store) HasSummaryFailure(ctx context.Context, contentHash string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM summary_failures WHERE content_hash = ?", contentHash)
	if err != nil {
		return false, fmt.Errorf("store: has summary failure %s: %w", contentHash, err)
	}
	return count > 0, nil
}

// QueueDepth returns the number of entries awaiting processing
// (locked or in cooldown excluded), used by the admin queue-status
// endpoint and the /metrics endpoint.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.db.GetContext(ctx, &depth, `
		SELECT COUNT(*) FROM summary_queue
		WHERE locked_at IS NULL AND (cooldown_until IS NULL OR cooldown_until <= ?)`, now())
	if err != nil {
		return 0, fmt.Errorf("store: queue depth: %w", err)
	}
	return depth, nil
}

// ClearQueueCooldowns lifts every pending cooldown immediately,
// returning the number of entries affected. Used by the admin
// clear-queue-cooldowns operation when an upstream outage has cleared
// and operators don't want to wait out the remaining backoff.
func (s *Store) ClearQueueCooldowns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE summary_queue SET cooldown_until = NULL WHERE cooldown_until IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("store: clear queue cooldowns: %w", err)
	}
	return res.RowsAffected()
}

// reprocessPriority is the elevated priority an operator-triggered
// reprocess jumps the queue to, well above the 0 new posts enqueue at
// and the -1 the backfill sweep uses.
const reprocessPriority = 10

// ReprocessPostSummary force-requeues postID's summary for contentHash
// at reprocessPriority. Any existing queue entry for the post is reset
// (lock, cooldown, and attempt history cleared) rather than duplicated;
// otherwise a fresh entry is inserted. Any prior permanent-failure
// record and cached summary for contentHash are dropped first so the
// post is actually regenerated rather than short-circuited by the
// worker's existing-summary or known-failure checks.
func (s *Store) ReprocessPostSummary(ctx context.Context, postID int64, contentHash string) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM summary_failures WHERE content_hash = ?", contentHash); err != nil {
			return fmt.Errorf("store: clear summary failure %s: %w", contentHash, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM ai_summaries WHERE content_hash = ?", contentHash); err != nil {
			return fmt.Errorf("store: clear cached summary %s: %w", contentHash, err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE summary_queue
			SET locked_at = NULL, cooldown_until = NULL, attempts = 0, last_error = NULL, error_type = NULL, priority = ?
			WHERE post_id = ?`, reprocessPriority, postID)
		if err != nil {
			return fmt.Errorf("store: reprocess post summary %d: %w", postID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: reprocess post summary %d: %w", postID, err)
		}
		if affected > 0 {
			return nil
		}
		return EnqueueSummary(ctx, tx, postID, contentHash, reprocessPriority)
	})
}

// PostsMissingQueueEntry returns posts with a content hash, no AI
// summary yet, and no existing queue entry — the backfill sweep's
// candidate set for re-enqueueing work dropped by a crash or bug.
func (s *Store) PostsMissingQueueEntry(ctx context.Context, limit int) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, `
		SELECT p.* FROM posts p
		WHERE p.content_hash IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM ai_summaries a WHERE a.content_hash = p.content_hash)
		  AND NOT EXISTS (SELECT 1 FROM summary_queue q WHERE q.post_id = p.id)
		  AND NOT EXISTS (SELECT 1 FROM summary_failures f WHERE f.content_hash = p.content_hash)
		ORDER BY p.fetched_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: posts missing queue entry: %w", err)
	}
	return posts, nil
}
