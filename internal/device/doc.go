// Package device is the host side of the plugin: the device registry the
// cameras are announced to, and the settings store the provider reads its
// neolink server details from.
//
// # Key Types
//
//   - Device: a camera, or one of its siren/switch sub-devices
//   - Ability: optional camera feature (battery, siren, floodlight, ...)
//   - Capability: host interface a device implements (camera, on_off, ...)
//   - Registry: cached, thread-safe device registry over a Repository
//   - SettingsStore: key/value settings on the settings table
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	caps := device.RequiredCapabilities(
//	    []device.Ability{device.AbilityBattery, device.AbilitySiren}, false)
//	// [battery camera device_provider motion_sensor reboot settings video_camera_configuration]
//
// Sub-devices reference their camera through ParentID; deleting a camera
// cascades to its sub-devices.
package device
