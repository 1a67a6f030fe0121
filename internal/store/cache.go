package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// GetJSON reads a cached value into dst. Expired or undecodable entries are
// removed and reported as a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	var value, expiresAt string
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM response_cache WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expiry, err := parseTime(expiresAt)
	if err != nil || (!expiry.IsZero() && !s.now().Before(expiry)) {
		return false, s.Del(ctx, key)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, s.Del(ctx, key)
	}
	return true, nil
}

// SetJSON stores val under key for ttl. A non-positive ttl never expires.
func (s *Store) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	expiresAt := ""
	if ttl > 0 {
		expiresAt = formatTime(s.now().Add(ttl))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(b), expiresAt)
	return err
}

// Del removes cached keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		placeholders[i] = "?"
		args[i] = key
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key IN (`+strings.Join(placeholders, ",")+`)`, args...)
	return err
}

// PurgeExpired deletes expired cache entries and reports how many were
// removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at != '' AND expires_at <= ?`, formatTime(s.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
