package store

import (
	"context"
	"fmt"
)

// migrations is the forward-only schema history. Entries are never
// edited once shipped — new schema changes are appended.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY
	)`,

	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		source_url TEXT NOT NULL UNIQUE,
		site_url TEXT,
		last_fetched_at DATETIME,
		error_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_error_at DATETIME,
		next_retry_at DATETIME,
		disabled_at DATETIME,
		disabled_reason TEXT,
		guid_unreliable INTEGER NOT NULL DEFAULT 0,
		guid_collision_count INTEGER NOT NULL DEFAULT 0,
		allow_duplicate_urls INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		guid TEXT,
		original_url TEXT NOT NULL,
		normalized_url TEXT,
		title TEXT NOT NULL,
		author TEXT,
		short_content TEXT,
		full_content TEXT,
		content_hash TEXT,
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		sort_date DATETIME NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at DATETIME,
		is_starred INTEGER NOT NULL DEFAULT 0,
		starred_at DATETIME,
		is_liked INTEGER NOT NULL DEFAULT 0,
		liked_at DATETIME,
		is_suggested INTEGER NOT NULL DEFAULT 0,
		suggestion_score INTEGER,
		suggested_at DATETIME,
		fetch_full_attempted_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_feed_guid ON posts(feed_id, guid)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_feed_url ON posts(feed_id, normalized_url)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_feed_hash ON posts(feed_id, content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_sort_date ON posts(sort_date)`,

	`CREATE TABLE IF NOT EXISTS post_tags (
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		PRIMARY KEY (post_id, tag)
	)`,

	`CREATE TABLE IF NOT EXISTS ai_summaries (
		content_hash TEXT PRIMARY KEY,
		summary_text TEXT NOT NULL,
		one_line_summary TEXT NOT NULL,
		translated_title TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS summary_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL UNIQUE REFERENCES posts(id) ON DELETE CASCADE,
		content_hash TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		error_type TEXT,
		locked_at DATETIME,
		cooldown_until DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_summary_queue_ready ON summary_queue(priority DESC, created_at ASC, id ASC)`,

	`CREATE TABLE IF NOT EXISTS summary_failures (
		content_hash TEXT PRIMARY KEY,
		last_error TEXT NOT NULL,
		failed_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS scheduler_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		holder_id TEXT NOT NULL,
		acquired_at DATETIME NOT NULL,
		heartbeat_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS cleanup_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ran_at DATETIME NOT NULL,
		posts_deleted INTEGER NOT NULL,
		full_content_cleared INTEGER NOT NULL,
		duration_seconds REAL NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS token_blacklist (
		token_id TEXT PRIMARY KEY,
		blacklisted_at DATETIME NOT NULL
	)`,
}

// migrate applies every migration whose index has not yet been
// recorded in schema_migrations, in order, each in its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrations[0]); err != nil {
		return fmt.Errorf("migrate: bootstrap schema_migrations: %w", err)
	}

	var applied int
	if err := s.db.GetContext(ctx, &applied, "SELECT COUNT(*) FROM schema_migrations"); err != nil {
		return fmt.Errorf("migrate: count applied: %w", err)
	}

	for i := applied + 1; i < len(migrations); i++ {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate: begin tx for migration %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate: apply migration %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations(version) VALUES (?)", i); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate: record migration %d: %w", i, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate: commit migration %d: %w", i, err)
		}
	}
	return nil
}
