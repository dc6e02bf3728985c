package device

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	maxInfoKeys   = 20
	maxInfoValue  = 256

	// topicReserved are characters that would break the camera's topic
	// namespace.
	topicReserved = "/+#"
)

// ValidateCameraName checks that a neolink camera name can be used as a
// single MQTT topic level.
func ValidateCameraName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: camera name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: camera name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if strings.ContainsAny(name, topicReserved) {
		return fmt.Errorf("%w: camera name %q contains one of %q", ErrInvalidName, name, topicReserved)
	}
	return nil
}

// Validate reports the first problem with the device.
func (d *Device) Validate() error {
	if d == nil {
		return ErrInvalidDevice
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if strings.TrimSpace(d.Name) == "" || utf8.RuneCountInString(d.Name) > maxNameLength {
		return fmt.Errorf("%w: display name must be 1-%d characters", ErrInvalidName, maxNameLength)
	}
	if err := ValidateCameraName(d.CameraName); err != nil {
		return err
	}

	if !slices.Contains(AllDeviceTypes(), d.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.Type)
	}
	switch {
	case d.Type == TypeCamera && d.ParentID != nil:
		return fmt.Errorf("%w: camera cannot have a parent", ErrInvalidDevice)
	case d.Type != TypeCamera && (d.ParentID == nil || *d.ParentID == ""):
		return fmt.Errorf("%w: %s requires a parent camera", ErrInvalidDevice, d.Type)
	}

	for _, a := range d.Abilities {
		if !slices.Contains(ValidAbilities(), a) {
			return fmt.Errorf("%w: %q", ErrInvalidAbility, a)
		}
	}
	for _, c := range d.Capabilities {
		if !slices.Contains(AllCapabilities(), c) {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}

	if len(d.Info) > maxInfoKeys {
		return fmt.Errorf("%w: info has more than %d keys", ErrInvalidDevice, maxInfoKeys)
	}
	for k, v := range d.Info {
		if len(v) > maxInfoValue {
			return fmt.Errorf("%w: info %q exceeds %d bytes", ErrInvalidDevice, k, maxInfoValue)
		}
	}
	return nil
}

// GenerateID returns a new native id for a camera.
func GenerateID() string {
	return uuid.NewString()
}
