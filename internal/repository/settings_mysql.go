package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"econscour/internal/model"
)

// MySQLSettingsRepository implements SettingsRepository using MySQL.
type MySQLSettingsRepository struct {
	db *sql.DB
}

// NewMySQLSettingsRepository creates the settings table if needed. The caller owns db.
func NewMySQLSettingsRepository(ctx context.Context, db *sql.DB) (*MySQLSettingsRepository, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS viewer_settings (
			profile VARCHAR(64) NOT NULL PRIMARY KEY,
			settings_json TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}
	return &MySQLSettingsRepository{db: db}, nil
}

// GetSettings returns the stored settings for profile.
func (r *MySQLSettingsRepository) GetSettings(ctx context.Context, profile string) (model.Settings, error) {
	query := `SELECT settings_json FROM viewer_settings WHERE profile = ? LIMIT 1`

	var raw string
	err := r.db.QueryRowContext(ctx, query, profileKey(profile)).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DefaultSettings(), nil
		}
		return model.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return decodeSettings(raw)
}

// SaveSettings upserts the settings for profile.
func (r *MySQLSettingsRepository) SaveSettings(ctx context.Context, profile string, s model.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `
		INSERT INTO viewer_settings (profile, settings_json, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			settings_json = VALUES(settings_json),
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, profileKey(profile), string(data)); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Close is a no-op; the connection pool belongs to the caller.
func (r *MySQLSettingsRepository) Close() error {
	return nil
}

// Ensure MySQLSettingsRepository implements SettingsRepository
var _ SettingsRepository = (*MySQLSettingsRepository)(nil)
