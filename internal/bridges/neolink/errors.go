package neolink

import "errors"

// Sentinel errors for the neolink adapter.
var (
	// ErrDecode wraps payloads from neolink that cannot be decoded: battery
	// levels that are not JSON numbers, previews that are not base64.
	ErrDecode = errors.New("neolink: decode failed")

	// ErrInvalidCommand is returned for control values neolink does not accept.
	ErrInvalidCommand = errors.New("neolink: invalid command")

	// ErrAbilityDisabled is returned when addressing a switch the camera
	// was not configured with.
	ErrAbilityDisabled = errors.New("neolink: ability not enabled")

	// ErrInvalidCamera is returned when a camera name is missing or unusable.
	ErrInvalidCamera = errors.New("neolink: invalid camera")

	// ErrCameraExists is returned when creating a camera whose neolink name
	// is already managed.
	ErrCameraExists = errors.New("neolink: camera already exists")

	// ErrCameraNotFound is returned for unknown native ids.
	ErrCameraNotFound = errors.New("neolink: camera not found")

	// ErrServerNotConfigured is returned when creating a camera before the
	// neolink server IP is set.
	ErrServerNotConfigured = errors.New("neolink: server IP not configured")
)
