package db

import (
	"context"
	"database/sql"
	"time"

	"anypod/internal/apperrors"
)

// Well-known app_state keys.
const (
	StateKeyYtDlpLastUpdate = "last_yt_dlp_update"
	StateKeyDBSchemaNotice  = "schema_migration_notice"
)

// AppStateStore is a single-writer key/value table for process-wide
// facts that don't belong to any one feed or download.
type AppStateStore struct {
	db *sql.DB
}

func NewAppStateStore(conn *sql.DB) *AppStateStore { return &AppStateStore{db: conn} }

// GetState returns the value for key, or ("", false, nil) if unset.
func (s *AppStateStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &apperrors.DatabaseOperationError{Op: "get_state", Err: err}
	}
	return value, true, nil
}

// SetState upserts a key/value pair, stamping updated_at.
func (s *AppStateStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, timeToStr(time.Now().UTC()))
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "set_state", Err: err}
	}
	return nil
}

// DeleteState removes a key entirely; absence of the key is not an error.
func (s *AppStateStore) DeleteState(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, key); err != nil {
		return &apperrors.DatabaseOperationError{Op: "delete_state", Err: err}
	}
	return nil
}

// GetStateTime is a convenience wrapper for keys storing RFC3339 timestamps.
func (s *AppStateStore) GetStateTime(ctx context.Context, key string) (*time.Time, error) {
	raw, ok, err := s.GetState(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	t, err := strToTime(raw)
	if err != nil {
		return nil, &apperrors.DatabaseOperationError{Op: "get_state_time", Err: err}
	}
	return &t, nil
}

// SetStateTime is a convenience wrapper for keys storing RFC3339 timestamps.
func (s *AppStateStore) SetStateTime(ctx context.Context, key string, t time.Time) error {
	return s.SetState(ctx, key, timeToStr(t))
}
