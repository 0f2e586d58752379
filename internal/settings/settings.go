package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/versedapp/versed/internal/telemetry"
)

// Store persists small key-value settings in the app-owned main database.
// It shares the process-wide connection with the attachment controller but
// only ever touches the main schema.
type Store struct {
	db  *sql.DB
	tel *telemetry.Telemetry
}

func New(db *sql.DB, tel *telemetry.Telemetry) *Store {
	return &Store{db: db, tel: tel}
}

// Get returns the value stored under key, or def when the key is absent.
func (s *Store) Get(ctx context.Context, key, def string) (string, error) {
	var value string

	err := s.tel.InstrumentDBOperation(ctx, "get_setting", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	return value, nil
}

// GetMany returns the stored values for the given keys. Absent keys are
// missing from the result map.
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))

	err := s.tel.InstrumentDBOperation(ctx, "get_settings", func(ctx context.Context) error {
		for _, key := range keys {
			var value string

			err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}

			if err != nil {
				return err
			}

			values[key] = value
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return values, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.tel.InstrumentDBOperation(ctx, "set_setting", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.tel.InstrumentDBOperation(ctx, "delete_setting", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}

	return nil
}
