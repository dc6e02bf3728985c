package device

import (
	"maps"
	"slices"
	"time"
)

// DeviceType classifies a registered device.
type DeviceType string

// DeviceType constants.
const (
	TypeCamera DeviceType = "camera"
	TypeSiren  DeviceType = "siren"
	TypeSwitch DeviceType = "switch"
)

// AllDeviceTypes returns every known device type.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{TypeCamera, TypeSiren, TypeSwitch}
}

// Info is free-form manufacturer metadata shown by the host.
type Info map[string]string

// Device is a camera or one of its on/off sub-devices as registered with
// the host. Sub-devices carry the parent camera's ID in ParentID.
type Device struct {
	// ID is the native id: a camera's generated id, or the camera id plus
	// an ability suffix for sub-devices.
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`

	Name       string     `json:"name"`
	CameraName string     `json:"camera_name"`
	Type       DeviceType `json:"type"`

	Capabilities []Capability `json:"capabilities"`
	Abilities    []Ability    `json:"abilities"`

	ParentID *string `json:"parent_id,omitempty"`
	Info     Info    `json:"info,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy so cached devices cannot be
// mutated through returned values.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Capabilities = slices.Clone(d.Capabilities)
	cpy.Abilities = slices.Clone(d.Abilities)
	cpy.Info = maps.Clone(d.Info)
	if d.ParentID != nil {
		parent := *d.ParentID
		cpy.ParentID = &parent
	}
	return &cpy
}

// IsCamera reports whether the device is a top-level camera.
func (d *Device) IsCamera() bool {
	return d.Type == TypeCamera
}

// HasAbility reports whether the ability is enabled on the device.
func (d *Device) HasAbility(a Ability) bool {
	return slices.Contains(d.Abilities, a)
}

// HasCapability reports whether the device exposes the capability.
func (d *Device) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}
