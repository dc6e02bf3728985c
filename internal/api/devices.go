package api

import (
	"net/http"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
)

// handleListDevices returns the host device registry, with optional filters.
//
// Query parameters:
//   - camera: filter by neolink camera name
//   - type: filter by device type (camera, siren, switch)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	cameraName := r.URL.Query().Get("camera")
	deviceType := device.DeviceType(r.URL.Query().Get("type"))

	all := s.registry.ListDevices(r.Context())
	devices := make([]device.Device, 0, len(all))
	for _, d := range all {
		if cameraName != "" && d.CameraName != cameraName {
			continue
		}
		if deviceType != "" && d.Type != deviceType {
			continue
		}
		devices = append(devices, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}
