package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/formpilot/config"
)

// LoadSettings returns the stored settings, or the defaults when none were
// saved.
func (s *Store) LoadSettings(ctx context.Context) (config.Settings, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return config.DefaultSettings(), nil
	}
	if err != nil {
		return config.Settings{}, fmt.Errorf("store: load settings: %w", err)
	}
	st, err := config.ParseSettingsJSON([]byte(raw))
	if err != nil {
		return config.Settings{}, fmt.Errorf("store: decode settings: %w", err)
	}
	return st, nil
}

// SaveSettings validates and stores st.
func (s *Store) SaveSettings(ctx context.Context, st config.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: encode settings: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save settings: %w", err)
	}
	return nil
}
