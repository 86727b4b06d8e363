package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"econscour/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteSettingsRepository implements SettingsRepository using SQLite.
type SQLiteSettingsRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteSettingsRepository opens (or creates) the settings database at dbPath.
func NewSQLiteSettingsRepository(dbPath string) (*SQLiteSettingsRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSettingsTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteSettingsRepository] Initialized with database: %s", dbPath)
	return &SQLiteSettingsRepository{db: db}, nil
}

func createSettingsTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS viewer_settings (
		profile TEXT PRIMARY KEY,
		settings_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`)
	return err
}

// GetSettings returns the stored settings for profile.
func (r *SQLiteSettingsRepository) GetSettings(ctx context.Context, profile string) (model.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT settings_json FROM viewer_settings WHERE profile = ?`, profileKey(profile),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return decodeSettings(raw)
}

// SaveSettings upserts the settings for profile.
func (r *SQLiteSettingsRepository) SaveSettings(ctx context.Context, profile string, s model.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO viewer_settings (profile, settings_json, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(profile) DO UPDATE SET
			settings_json = excluded.settings_json,
			updated_at = datetime('now')`,
		profileKey(profile), string(data))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *SQLiteSettingsRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteSettingsRepository implements SettingsRepository
var _ SettingsRepository = (*SQLiteSettingsRepository)(nil)
