package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device persistence.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns every device ordered by camera name, cameras before
	// their sub-devices.
	List(ctx context.Context) ([]Device, error)

	// ListChildren returns the sub-devices of a camera.
	ListChildren(ctx context.Context, parentID string) ([]Device, error)

	// Upsert inserts the device or replaces the existing row with the same
	// ID. Returns ErrDeviceExists when another camera already uses the
	// camera name.
	Upsert(ctx context.Context, device *Device) error

	// Delete removes the device and, through the foreign key, its
	// sub-devices. Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, provider_id, name, camera_name, type, capabilities,
	abilities, parent_id, info, created_at, updated_at`

// GetByID retrieves a device by its native id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices
		ORDER BY camera_name, parent_id IS NOT NULL, id`)
}

// ListChildren retrieves the sub-devices of a camera.
func (r *SQLiteRepository) ListChildren(ctx context.Context, parentID string) ([]Device, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices
		WHERE parent_id = ? ORDER BY id`, parentID)
}

// Upsert inserts or replaces a device. CreatedAt is preserved for
// existing rows.
func (r *SQLiteRepository) Upsert(ctx context.Context, d *Device) error {
	capsJSON, err := json.Marshal(nonNil(d.Capabilities))
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}
	abilitiesJSON, err := json.Marshal(nonNil(d.Abilities))
	if err != nil {
		return fmt.Errorf("marshalling abilities: %w", err)
	}
	info := d.Info
	if info == nil {
		info = Info{}
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshalling info: %w", err)
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	var parent sql.NullString
	if d.ParentID != nil {
		parent = sql.NullString{String: *d.ParentID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_id  = excluded.provider_id,
			name         = excluded.name,
			camera_name  = excluded.camera_name,
			type         = excluded.type,
			capabilities = excluded.capabilities,
			abilities    = excluded.abilities,
			parent_id    = excluded.parent_id,
			info         = excluded.info,
			updated_at   = excluded.updated_at`,
		d.ID, d.ProviderID, d.Name, d.CameraName, string(d.Type),
		string(capsJSON), string(abilitiesJSON), parent, string(infoJSON),
		d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: camera %q", ErrDeviceExists, d.CameraName)
		}
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var deviceType, capsJSON, abilitiesJSON, infoJSON, createdAt, updatedAt string
	var parent sql.NullString

	if err := row.Scan(
		&d.ID, &d.ProviderID, &d.Name, &d.CameraName, &deviceType,
		&capsJSON, &abilitiesJSON, &parent, &infoJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	d.Type = DeviceType(deviceType)
	if parent.Valid {
		d.ParentID = &parent.String
	}
	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(abilitiesJSON), &d.Abilities); err != nil {
		return nil, fmt.Errorf("unmarshalling abilities: %w", err)
	}
	if err := json.Unmarshal([]byte(infoJSON), &d.Info); err != nil {
		return nil, fmt.Errorf("unmarshalling info: %w", err)
	}

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
