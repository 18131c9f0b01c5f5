package database

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetSetting retrieves a setting value by key. Missing keys return "".
func (s *store) GetSetting(ctx context.Context, key string) (string, error) {
	row, err := s.Get(ctx, "SELECT value FROM settings WHERE key = ?", key)
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	if row == nil {
		return "", nil
	}
	value, _ := row["value"].(string)
	return value, nil
}

// GetSettingJSON retrieves a setting and unmarshals it from JSON.
func (s *store) GetSettingJSON(ctx context.Context, key string, v any) error {
	value, err := s.GetSetting(ctx, key)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	return json.Unmarshal([]byte(value), v)
}

// SetSetting stores a setting value.
func (s *store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.Run(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, timestamp())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SetSettingJSON stores a setting as JSON.
func (s *store) SetSettingJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal setting %s: %w", key, err)
	}
	return s.SetSetting(ctx, key, string(data))
}

// GetAllSettings retrieves all settings.
func (s *store) GetAllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.Query(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		value, _ := row["value"].(string)
		settings[key] = value
	}
	return settings, nil
}

// DeleteSetting removes a setting.
func (s *store) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.Run(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
