package device

import "errors"

var (
	ErrDeviceNotFound = errors.New("device: not found")
	// ErrDeviceExists means the camera name is taken by another id.
	ErrDeviceExists  = errors.New("device: already exists")
	ErrInvalidDevice = errors.New("device: invalid")

	ErrInvalidDeviceType = errors.New("device: invalid type")
	ErrInvalidCapability = errors.New("device: invalid capability")
	ErrInvalidAbility    = errors.New("device: invalid ability")
	ErrInvalidName       = errors.New("device: invalid name")

	// ErrSettingNotFound is returned by SettingsStore.Get for keys never set.
	ErrSettingNotFound = errors.New("device: setting not found")
)
