package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns a raw stored value, or ErrNotFound if the key has
// never been overridden from its environment default.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM app_settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a key/value pair, used to persist runtime state
// such as the circuit breaker, the key-rotator cursor, and the
// personalization profile.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	return nil
}

// EffectiveSetting returns the DB-stored override for key if present,
// otherwise envDefault: a row in app_settings wins over the supplied
// default. The config package does not call it; config values come from
// the process environment only.
func (s *Store) EffectiveSetting(ctx context.Context, key, envDefault string) string {
	value, err := s.GetSetting(ctx, key)
	if err != nil {
		return envDefault
	}
	return value
}

// ClearSetting removes a DB override, reverting the key to its
// environment default.
func (s *Store) ClearSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM app_settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("store: clear setting %s: %w", key, err)
	}
	return nil
}

// RecordCleanup appends a row to cleanup_log after a retention pass.
func (s *Store) RecordCleanup(ctx context.Context, entry CleanupLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cleanup_log (ran_at, posts_deleted, full_content_cleared, duration_seconds)
		VALUES (?, ?, ?, ?)`, now(), entry.PostsDeleted, entry.FullContentCleared, entry.DurationSeconds)
	if err != nil {
		return fmt.Errorf("store: record cleanup: %w", err)
	}
	return nil
}

// BlacklistToken records a revoked session token ID so it is rejected
// even before its natural expiry.
func (s *Store) BlacklistToken(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_id, blacklisted_at) VALUES (?, ?)
		ON CONFLICT(token_id) DO NOTHING`, tokenID, now())
	if err != nil {
		return fmt.Errorf("store: blacklist token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether a token ID has been revoked.
func (s *Store) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM token_blacklist WHERE token_id = ?", tokenID)
	if err != nil {
		return false, fmt.Errorf("store: is token blacklisted: %w", err)
	}
	return count > 0, nil
}
