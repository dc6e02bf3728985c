package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apocaliss92/scrypted-neolink/internal/bridges/neolink"
	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/mqtt"
)

// Error is the body of every error response: {"error": {...}}.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error Error `json:"error"`
}

// Common error codes.
const (
	ErrCodeBadRequest          = "bad_request"
	ErrCodeNotFound            = "not_found"
	ErrCodeUnauthorized        = "unauthorised"
	ErrCodeForbidden           = "forbidden"
	ErrCodeConflict            = "conflict"
	ErrCodeInternal            = "internal_error"
	ErrCodeValidation          = "validation_error"
	ErrCodeServerNotConfigured = "server_not_configured"
	ErrCodeBrokerUnavailable   = "broker_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: Error{Code: code, Message: message}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps adapter, registry and session errors to a status.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, neolink.ErrCameraNotFound), errors.Is(err, device.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, neolink.ErrInvalidCamera),
		errors.Is(err, neolink.ErrInvalidCommand),
		errors.Is(err, device.ErrInvalidAbility),
		errors.Is(err, device.ErrInvalidName):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, neolink.ErrCameraExists),
		errors.Is(err, neolink.ErrAbilityDisabled),
		errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, neolink.ErrServerNotConfigured):
		writeError(w, http.StatusPreconditionFailed, ErrCodeServerNotConfigured, err.Error())
	case errors.Is(err, mqtt.ErrConnection),
		errors.Is(err, mqtt.ErrPublish),
		errors.Is(err, mqtt.ErrSubscribe),
		errors.Is(err, mqtt.ErrNotConnected),
		errors.Is(err, mqtt.ErrTimeout):
		writeError(w, http.StatusBadGateway, ErrCodeBrokerUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
