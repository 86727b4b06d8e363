package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"econscour/internal/model"
)

// DefaultProfile is used when a request does not name a profile.
const DefaultProfile = "default"

// ErrInvalidSettings wraps every ValidateSettings failure.
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsRepository persists viewer settings per profile.
type SettingsRepository interface {
	// GetSettings returns the stored settings, or the defaults when none exist.
	GetSettings(ctx context.Context, profile string) (model.Settings, error)

	// SaveSettings stores settings, replacing any previous value.
	SaveSettings(ctx context.Context, profile string, s model.Settings) error

	// Close closes the repository connection.
	Close() error
}

func profileKey(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return DefaultProfile
	}
	return profile
}

// decodeSettings overlays a stored blob on the defaults so fields added later
// keep their default value.
func decodeSettings(raw string) (model.Settings, error) {
	s := model.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return model.DefaultSettings(), fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

// ValidateSettings rejects values the viewer cannot render.
func ValidateSettings(s model.Settings) error {
	if s.FontSize < 8 || s.FontSize > 32 {
		return fmt.Errorf("%w: font size must be between 8 and 32, got %d", ErrInvalidSettings, s.FontSize)
	}
	return nil
}
