package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apocaliss92/scrypted-neolink/internal/audit"
	"github.com/apocaliss92/scrypted-neolink/internal/bridges/neolink"
	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every component reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Provider *neolink.Provider
	Registry *device.Registry
	Settings *device.SettingsStore

	// Audit records mutations. Optional.
	Audit audit.Repository

	// Health maps a component name to its checker, e.g. "mqtt", "database".
	Health map[string]HealthChecker

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the HTTP API server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	provider  *neolink.Provider
	registry  *device.Registry
	settings  *device.SettingsStore
	audit     audit.Repository
	health    map[string]HealthChecker
	gatherer  prometheus.Gatherer
	version   string
	startTime time.Time

	hub         *Hub
	server      *http.Server
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("neolink provider is required")
	}
	if deps.Registry == nil || deps.Settings == nil {
		return nil, fmt.Errorf("device registry and settings are required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		provider:  deps.Provider,
		registry:  deps.Registry,
		settings:  deps.Settings,
		audit:     deps.Audit,
		health:    deps.Health,
		gatherer:  deps.Gatherer,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Logger),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes it to camera state changes and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.unsubscribe = s.provider.Subscribe(s.hub.BroadcastState)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.cfg.JWTSecret != "")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
