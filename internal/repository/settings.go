package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/renfield-project/renfield/internal/wakeword"
)

const wakeWordSettingsKey = "wakeword_config"

// SettingsStore satisfies wakeword.SettingsStore, persisting the single
// process-wide wake-word config as a JSONB row keyed by name so other
// process-wide settings can share the same table later without a schema
// change.
type SettingsStore struct {
	store *Store
}

func NewSettingsStore(store *Store) *SettingsStore {
	return &SettingsStore{store: store}
}

type wakeWordConfigRow struct {
	Keywords   []string `json:"keywords"`
	Threshold  float64  `json:"threshold"`
	CooldownMs int64    `json:"cooldown_ms"`
	Enabled    bool     `json:"enabled"`
	Version    uint64   `json:"version"`
}

func (s *SettingsStore) LoadWakeWordConfig() (wakeword.Config, bool, error) {
	ctx := context.Background()
	var raw []byte
	err := s.store.pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE key=$1`, wakeWordSettingsKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wakeword.Config{}, false, nil
		}
		return wakeword.Config{}, false, fmt.Errorf("repository: load wakeword config: %w", err)
	}

	var row wakeWordConfigRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return wakeword.Config{}, false, fmt.Errorf("repository: unmarshal wakeword config: %w", err)
	}
	return wakeword.Config{
		Keywords:   row.Keywords,
		Threshold:  row.Threshold,
		CooldownMs: row.CooldownMs,
		Enabled:    row.Enabled,
		Version:    row.Version,
	}, true, nil
}

func (s *SettingsStore) SaveWakeWordConfig(cfg wakeword.Config) error {
	ctx := context.Background()
	row := wakeWordConfigRow{
		Keywords:   cfg.Keywords,
		Threshold:  cfg.Threshold,
		CooldownMs: cfg.CooldownMs,
		Enabled:    cfg.Enabled,
		Version:    cfg.Version,
	}
	encoded, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("repository: marshal wakeword config: %w", err)
	}
	_, err = s.store.pool.Exec(ctx,
		`INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		wakeWordSettingsKey, encoded,
	)
	if err != nil {
		return fmt.Errorf("repository: save wakeword config: %w", err)
	}
	return nil
}
