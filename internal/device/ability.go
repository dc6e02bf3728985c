package device

import (
	"fmt"
	"slices"
	"strings"
)

// Ability is an optional camera feature enabled per camera.
type Ability string

// Ability constants.
const (
	AbilityBattery         Ability = "battery"
	AbilitySiren           Ability = "siren"
	AbilityFloodlight      Ability = "floodlight"
	AbilityFloodlightTasks Ability = "floodlight_tasks"
	AbilityPIR             Ability = "pir"
)

// ValidAbilities returns every known ability in canonical order.
func ValidAbilities() []Ability {
	return []Ability{
		AbilityBattery,
		AbilitySiren,
		AbilityFloodlight,
		AbilityFloodlightTasks,
		AbilityPIR,
	}
}

// ParseAbility accepts an ability name case-insensitively. Hyphens are
// treated as underscores, so "floodlight-tasks" is FloodlightTasks.
func ParseAbility(s string) (Ability, error) {
	a := Ability(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if slices.Contains(ValidAbilities(), a) {
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAbility, s)
}

// ParseAbilities parses a list and returns it sorted and duplicate-free.
func ParseAbilities(names []string) ([]Ability, error) {
	set := make(AbilitySet, len(names))
	for _, n := range names {
		a, err := ParseAbility(n)
		if err != nil {
			return nil, err
		}
		set[a] = struct{}{}
	}
	return set.Sorted(), nil
}

// IsSwitch reports whether the ability is exposed as an on/off sub-device.
func (a Ability) IsSwitch() bool {
	switch a {
	case AbilitySiren, AbilityFloodlight, AbilityFloodlightTasks, AbilityPIR:
		return true
	}
	return false
}

// DeviceType is the sub-device type for a switch ability.
func (a Ability) DeviceType() DeviceType {
	if a == AbilitySiren {
		return TypeSiren
	}
	return TypeSwitch
}

// NativeIDSuffix is appended to the camera native id to address the
// ability's sub-device, e.g. "-floodlight-tasks".
func (a Ability) NativeIDSuffix() string {
	return "-" + strings.ReplaceAll(string(a), "_", "-")
}

// AbilitySet is an unordered set of abilities.
type AbilitySet map[Ability]struct{}

// NewAbilitySet builds a set from a list.
func NewAbilitySet(abilities ...Ability) AbilitySet {
	s := make(AbilitySet, len(abilities))
	for _, a := range abilities {
		s[a] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s AbilitySet) Has(a Ability) bool {
	_, ok := s[a]
	return ok
}

// Sorted returns the members in canonical order.
func (s AbilitySet) Sorted() []Ability {
	out := make([]Ability, 0, len(s))
	for _, a := range ValidAbilities() {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// Capability is a host-side interface a device implements.
type Capability string

// Capability constants.
const (
	CapCamera                   Capability = "camera"
	CapVideoCameraConfiguration Capability = "video_camera_configuration"
	CapMotionSensor             Capability = "motion_sensor"
	CapSettings                 Capability = "settings"
	CapReboot                   Capability = "reboot"
	CapPanTiltZoom              Capability = "pan_tilt_zoom"
	CapBattery                  Capability = "battery"
	CapDeviceProvider           Capability = "device_provider"
	CapOnOff                    Capability = "on_off"
)

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapBattery,
		CapCamera,
		CapDeviceProvider,
		CapMotionSensor,
		CapOnOff,
		CapPanTiltZoom,
		CapReboot,
		CapSettings,
		CapVideoCameraConfiguration,
	}
}

// RequiredCapabilities computes the interfaces a camera exposes for its
// abilities. The result is sorted and duplicate-free.
//
// Every camera is a camera, video_camera_configuration, motion_sensor,
// settings and reboot. PTZ adds pan_tilt_zoom, Battery adds battery, and
// any switch ability makes the camera a device_provider for its
// sub-devices.
func RequiredCapabilities(abilities []Ability, ptz bool) []Capability {
	caps := []Capability{
		CapCamera,
		CapVideoCameraConfiguration,
		CapMotionSensor,
		CapSettings,
		CapReboot,
	}
	if ptz {
		caps = append(caps, CapPanTiltZoom)
	}

	provider := false
	for _, a := range abilities {
		if a == AbilityBattery {
			caps = append(caps, CapBattery)
		}
		if a.IsSwitch() {
			provider = true
		}
	}
	if provider {
		caps = append(caps, CapDeviceProvider)
	}

	slices.Sort(caps)
	return slices.Compact(caps)
}
