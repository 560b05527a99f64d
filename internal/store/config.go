package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetConfigValue returns the raw JSON stored under key, or ok=false when no
// row exists.
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM configuration WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read configuration %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfigValue upserts the raw JSON stored under key.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO configuration (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write configuration %s: %w", key, err)
	}
	return nil
}
