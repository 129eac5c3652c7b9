package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AcquireLock attempts to become (or remain) the scheduler leader.
// holderID identifies this process. It succeeds if the lock row is
// absent, already held by holderID, or stale (no heartbeat within
// lockTimeout). Returns (true, nil) on success, (false, nil) if
// another live holder owns the lock.
func (s *Store) AcquireLock(ctx context.Context, holderID string, lockTimeout time.Duration) (bool, error) {
	var existing SchedulerLock
	err := s.db.GetContext(ctx, &existing, "SELECT * FROM scheduler_lock WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO scheduler_lock (id, holder_id, acquired_at, heartbeat_at)
			VALUES (1, ?, ?, ?)`, holderID, now(), now())
		if err != nil {
			// Lost a race with another process inserting first; not an error.
			return false, nil
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: acquire lock: %w", err)
	}

	if existing.HolderID == holderID {
		return true, nil
	}
	if now().Sub(existing.HeartbeatAt) <= lockTimeout {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_lock SET holder_id = ?, acquired_at = ?, heartbeat_at = ?
		WHERE id = 1 AND holder_id = ?`, holderID, now(), now(), existing.HolderID)
	if err != nil {
		return false, fmt.Errorf("store: takeover lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: takeover lock: %w", err)
	}
	return affected > 0, nil
}

// Heartbeat extends a held lock's freshness. Returns false (not an
// error) if holderID no longer owns the lock — the caller should stop
// acting as leader immediately.
func (s *Store) Heartbeat(ctx context.Context, holderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_lock SET heartbeat_at = ? WHERE id = 1 AND holder_id = ?`, now(), holderID)
	if err != nil {
		return false, fmt.Errorf("store: heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: heartbeat: %w", err)
	}
	return affected > 0, nil
}

// ReleaseLock gives up leadership voluntarily, e.g. on graceful
// shutdown, so another process does not have to wait out the lock
// timeout before taking over.
func (s *Store) ReleaseLock(ctx context.Context, holderID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM scheduler_lock WHERE id = 1 AND holder_id = ?", holderID)
	if err != nil {
		return fmt.Errorf("store: release lock: %w", err)
	}
	return nil
}
