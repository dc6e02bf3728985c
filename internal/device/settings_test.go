package device

import (
	"context"
	"errors"
	"testing"
)

func TestSettingsStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewSettingsStore(db.DB)

	if _, err := store.Get(ctx, SettingServerIP); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("Get(unset) error = %v, want ErrSettingNotFound", err)
	}
	if got := store.GetOr(ctx, SettingServerPort, DefaultServerPort); got != "8554" {
		t.Errorf("GetOr(port) = %q, want 8554", got)
	}

	if err := store.Put(ctx, SettingServerIP, "192.168.1.10"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, SettingServerIP, "192.168.1.20"); err != nil {
		t.Fatalf("Put(overwrite) error = %v", err)
	}

	// A fresh store sees the persisted value.
	reloaded := NewSettingsStore(db.DB)
	got, err := reloaded.Get(ctx, SettingServerIP)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "192.168.1.20" {
		t.Errorf("Get() = %q, want 192.168.1.20", got)
	}

	if err := store.Put(ctx, CameraSettingKey("cam-1", "motion_timeout"), "30"); err != nil {
		t.Fatalf("Put(camera) error = %v", err)
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 || all["camera:cam-1:motion_timeout"] != "30" {
		t.Errorf("All() = %v", all)
	}

	// Empty value deletes.
	if err := store.Put(ctx, SettingServerIP, ""); err != nil {
		t.Fatalf("Put(empty) error = %v", err)
	}
	if _, err := NewSettingsStore(db.DB).Get(ctx, SettingServerIP); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSettingNotFound", err)
	}

	if err := store.Put(ctx, "", "x"); err == nil {
		t.Error("Put(empty key) = nil error")
	}
}
