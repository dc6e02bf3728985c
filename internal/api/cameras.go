package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apocaliss92/scrypted-neolink/internal/audit"
	"github.com/apocaliss92/scrypted-neolink/internal/bridges/neolink"
	"github.com/apocaliss92/scrypted-neolink/internal/device"
)

// createCameraRequest is the body of POST /cameras.
type createCameraRequest struct {
	CameraName string   `json:"camera_name"`
	Abilities  []string `json:"abilities"`
	PTZ        []string `json:"ptz"`
}

// updateAbilitiesRequest is the body of PUT /cameras/{id}/abilities. A
// missing ptz field leaves the axes unchanged.
type updateAbilitiesRequest struct {
	Abilities []string  `json:"abilities"`
	PTZ       *[]string `json:"ptz"`
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// camera resolves {id}, writing a 404 when it is unknown.
func (s *Server) camera(w http.ResponseWriter, r *http.Request) (*neolink.Camera, bool) {
	cam, err := s.provider.Camera(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	return cam, true
}

func (s *Server) handleListCameras(w http.ResponseWriter, _ *http.Request) {
	cams := s.provider.Cameras()
	states := make([]neolink.CameraState, 0, len(cams))
	for _, cam := range cams {
		states = append(states, cam.State())
	}
	writeJSON(w, http.StatusOK, map[string]any{"cameras": states, "count": len(states)})
}

func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cam.State())
}

func (s *Server) handleCreateCamera(w http.ResponseWriter, r *http.Request) {
	var req createCameraRequest
	if !decodeBody(w, r, &req) {
		return
	}

	abilities, err := device.ParseAbilities(req.Abilities)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	axes, err := neolink.ParsePTZAxes(req.PTZ)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	cam, err := s.provider.CreateCamera(r.Context(), req.CameraName, abilities)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if len(axes) > 0 {
		if cam, err = s.provider.UpdatePTZ(r.Context(), cam.NativeID(), axes); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	s.record(r, audit.ActionCreate, audit.EntityCamera, cam.NativeID(), map[string]any{
		"camera_name": cam.Name(),
		"abilities":   abilities,
		"ptz":         axes,
	})
	writeJSON(w, http.StatusCreated, cam.State())
}

func (s *Server) handleUpdateAbilities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateAbilitiesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	abilities, err := device.ParseAbilities(req.Abilities)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	cam, err := s.provider.UpdateAbilities(r.Context(), id, abilities)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.PTZ != nil {
		axes, err := neolink.ParsePTZAxes(*req.PTZ)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if cam, err = s.provider.UpdatePTZ(r.Context(), id, axes); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	state := cam.State()
	s.record(r, audit.ActionUpdate, audit.EntityCamera, id, map[string]any{
		"abilities": state.Abilities,
		"ptz":       state.PTZ,
	})
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteCamera(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.provider.RemoveCamera(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.record(r, audit.ActionDelete, audit.EntityCamera, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Commands
// =============================================================================

func (s *Server) handlePTZ(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	var cmd neolink.PTZCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	s.commandResult(w, r, cam, "ptz", cam.PTZ(r.Context(), cmd))
}

func (s *Server) handleGotoPreset(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	// Preset ids arrive as numbers or strings.
	var req struct {
		ID any `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id := ""
	if req.ID != nil {
		id = fmt.Sprint(req.ID)
	}
	s.commandResult(w, r, cam, "preset "+id, cam.GotoPreset(r.Context(), id))
}

func (s *Server) handleRefreshPresets(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	s.commandResult(w, r, cam, "refresh_presets", cam.RefreshPresets(r.Context()))
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	s.commandResult(w, r, cam, "reboot", cam.Reboot(r.Context()))
}

func (s *Server) handleSetLED(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	var req struct {
		On bool `json:"on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.commandResult(w, r, cam, "led "+onOffLabel(req.On), cam.SetLED(r.Context(), req.On))
}

func (s *Server) handleSetIR(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.commandResult(w, r, cam, "ir "+req.Mode, cam.SetIR(r.Context(), req.Mode))
}

// handleSwitch drives an on/off ability: /switches/{ability}/{on|off}.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}
	ability, err := device.ParseAbility(chi.URLParam(r, "ability"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	sw, err := cam.Switch(ability)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	switch chi.URLParam(r, "state") {
	case "on":
		err = sw.TurnOn(r.Context())
	case "off":
		err = sw.TurnOff(r.Context())
	default:
		writeBadRequest(w, "switch state must be on or off")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.record(r, audit.ActionCommand, audit.EntityCamera, cam.NativeID(), map[string]any{
		"command": string(ability) + " " + onOffLabel(sw.On()),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"native_id": sw.NativeID(),
		"ability":   sw.Ability(),
		"on":        sw.On(),
	})
}

// commandResult answers a fire-and-forget command with 202 and audits it.
func (s *Server) commandResult(w http.ResponseWriter, r *http.Request, cam *neolink.Camera, command string, err error) {
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.record(r, audit.ActionCommand, audit.EntityCamera, cam.NativeID(), map[string]any{"command": command})
	w.WriteHeader(http.StatusAccepted)
}

func onOffLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// =============================================================================
// Media
// =============================================================================

// handleSnapshot returns the latest preview image, or 204 when neolink has
// not published one yet.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.camera(w, r)
	if !ok {
		return
	}

	img, ok, err := cam.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	contentType := http.DetectContentType(img)
	if contentType == "application/octet-stream" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.provider.StreamURLs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}
