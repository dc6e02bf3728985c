package device

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Provider-level setting keys.
const (
	SettingServerIP     = "neolink_server_ip"
	SettingServerPort   = "neolink_server_port"
	SettingRTSPUsername = "rtsp_username"
	SettingRTSPPassword = "rtsp_password"

	// DefaultServerPort is the neolink RTSP port used when none is stored.
	DefaultServerPort = "8554"
)

// CameraSettingKey scopes a camera-level setting, e.g.
// CameraSettingKey(id, "motion_timeout").
func CameraSettingKey(nativeID, key string) string {
	return "camera:" + nativeID + ":" + key
}

// SettingsStore is the host settings storage: string values by key on the
// settings table, read through an in-memory copy.
type SettingsStore struct {
	db *sql.DB

	mu     sync.RWMutex
	values map[string]string
	loaded bool
}

// NewSettingsStore creates a store over an open connection.
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db, values: make(map[string]string)}
}

// Load reads every setting into memory. Get loads lazily if needed.
func (s *SettingsStore) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scanning setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating settings: %w", err)
	}

	s.mu.Lock()
	s.values = values
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Get returns the stored value or ErrSettingNotFound.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSettingNotFound, key)
	}
	return v, nil
}

// GetOr returns the stored value, or def when the key is unset or empty.
func (s *SettingsStore) GetOr(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	return v
}

// Put stores a value. An empty value deletes the key.
func (s *SettingsStore) Put(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("settings: empty key")
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	var err error
	if value == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC().Format(time.RFC3339))
	}
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}

	s.mu.Lock()
	if value == "" {
		delete(s.values, key)
	} else {
		s.values[key] = value
	}
	s.mu.Unlock()
	return nil
}

// All returns a copy of every stored setting.
func (s *SettingsStore) All(ctx context.Context) (map[string]string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), nil
}

func (s *SettingsStore) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Load(ctx)
}
