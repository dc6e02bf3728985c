package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/apocaliss92/scrypted-neolink/internal/auth"
)

// healthTimeout bounds each component health check.
const healthTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		// Open endpoints
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", s.metricsHandler())

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Route("/cameras", func(r chi.Router) {
				r.With(s.require(auth.PermCameraRead)).Get("/", s.handleListCameras)
				r.With(s.require(auth.PermCameraConfigure)).Post("/", s.handleCreateCamera)

				r.Route("/{id}", func(r chi.Router) {
					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermCameraRead))
						r.Get("/", s.handleGetCamera)
						r.Get("/snapshot", s.handleSnapshot)
						r.Get("/streams", s.handleStreams)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermCameraOperate))
						r.Post("/ptz", s.handlePTZ)
						r.Post("/preset", s.handleGotoPreset)
						r.Post("/presets/refresh", s.handleRefreshPresets)
						r.Post("/led", s.handleSetLED)
						r.Post("/ir", s.handleSetIR)
						r.Post("/switches/{ability}/{state}", s.handleSwitch)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermCameraConfigure))
						r.Delete("/", s.handleDeleteCamera)
						r.Put("/abilities", s.handleUpdateAbilities)
						r.Post("/reboot", s.handleReboot)
					})
				})
			})

			r.With(s.require(auth.PermCameraRead)).Get("/devices", s.handleListDevices)

			r.Route("/settings", func(r chi.Router) {
				r.Use(s.require(auth.PermSettingsManage))
				r.Get("/", s.handleListSettings)
				r.Put("/{key}", s.handlePutSetting)
			})

			r.With(s.require(auth.PermSettingsManage)).Get("/audit", s.handleListAudit)

			r.With(s.require(auth.PermCameraRead)).Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth reports every registered component. Any failing component
// turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	status, code := "ok", http.StatusOK

	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := checker.HealthCheck(ctx)
		cancel()

		if err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"cameras":        len(s.provider.Cameras()),
		"checks":         checks,
	})
}
