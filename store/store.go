// Package store is the single owner of all persisted rows: feeds,
// posts, the summary queue, AI summaries, the scheduler lock, and
// application settings. All mutation goes through its transactional
// helpers; every other package holds only in-memory views.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Store wraps the shared SQLite connection and exposes entity-grouped
// query methods (see feeds.go, posts.go, queue.go, summaries.go,
// tags.go, lock.go, settings.go).
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open opens (creating if absent) the SQLite file at path, configures
// WAL mode + a 5s busy timeout + relaxed synchronous durability, runs
// the integrity check, and applies any pending migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite writers serialize; one connection avoids spurious SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger.With().Str("component", "store").Logger()}

	if err := s.checkIntegrity(ctx, path); err != nil {
		return nil, fmt.Errorf("store: integrity check failed, refusing to start: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

const integrityCheckSizeThreshold = 100 * 1024 * 1024

// checkIntegrity runs "PRAGMA quick_check" for files above the size
// threshold (a full check would be too slow) and "PRAGMA
// integrity_check" below it. A corrupt file is a fatal startup
// condition; callers should refuse to start rather than serve from it.
func (s *Store) checkIntegrity(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh database, nothing to check yet
		}
		return err
	}

	pragma := "PRAGMA integrity_check"
	if info.Size() > integrityCheckSizeThreshold {
		pragma = "PRAGMA quick_check"
	}

	var result string
	if err := s.db.GetContext(ctx, &result, pragma); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("%s reported: %s", pragma, result)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. This is the unit-of-work every component
// call stack passes down instead of holding a request-scoped session.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed after error")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// Vacuum reclaims free space. Always runs outside any transaction.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// FileSizeBytes returns the on-disk size of the database file, used by
// the health_check job to compare against max_db_size_mb.
func (s *Store) FileSizeBytes(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.GetContext(ctx, &one, "SELECT 1")
}

// now is overridable in tests; production code always uses time.Now.
var now = time.Now

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
