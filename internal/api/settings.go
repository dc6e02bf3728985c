package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/apocaliss92/scrypted-neolink/internal/audit"
	"github.com/apocaliss92/scrypted-neolink/internal/device"
)

// editableSettings are the provider settings exposed over the API.
var editableSettings = map[string]bool{
	device.SettingServerIP:     true,
	device.SettingServerPort:   true,
	device.SettingRTSPUsername: true,
	device.SettingRTSPPassword: true,
}

// maskedValue replaces secrets in GET /settings.
const maskedValue = "********"

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.All(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	settings := make(map[string]string, len(editableSettings))
	for key := range editableSettings {
		settings[key] = all[key]
	}
	if settings[device.SettingServerPort] == "" {
		settings[device.SettingServerPort] = device.DefaultServerPort
	}
	if settings[device.SettingRTSPPassword] != "" {
		settings[device.SettingRTSPPassword] = maskedValue
	}

	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// handlePutSetting stores one provider setting. An empty value clears it.
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !editableSettings[key] {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown setting: "+key)
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	value := strings.TrimSpace(req.Value)

	if key == device.SettingServerPort && value != "" && !validPort(value) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "neolink_server_port must be between 1 and 65535")
		return
	}

	if err := s.settings.Put(r.Context(), key, value); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("provider setting updated", "key", key)
	s.record(r, audit.ActionUpdate, audit.EntitySetting, key, map[string]any{"cleared": value == ""})
	w.WriteHeader(http.StatusNoContent)
}

func validPort(v string) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n >= 1 && n <= 65535
}
