package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/apocaliss92/scrypted-neolink/internal/api"
	"github.com/apocaliss92/scrypted-neolink/internal/audit"
	"github.com/apocaliss92/scrypted-neolink/internal/bridges/neolink"
	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/database"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/influxdb"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/logging"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/mqtt"
	"github.com/apocaliss92/scrypted-neolink/internal/process"
	"github.com/apocaliss92/scrypted-neolink/migrations"
)

// shutdownTimeout bounds provider teardown after the context is cancelled.
const shutdownTimeout = 10 * time.Second

// run wires every component and blocks until ctx is cancelled.
// Deferred cleanups run in reverse start order.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting neolinkd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"plugin_id", cfg.Plugin.ID,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}

	settings := device.NewSettingsStore(db.DB)
	if err := seedSettings(ctx, settings, cfg.Neolink); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	health := map[string]api.HealthChecker{"database": db}

	session := mqtt.New(mqtt.OptionsFromConfig(cfg.MQTT), mqtt.NewCredentialProvider(cfg.MQTT))
	session.SetLogger(log.Component("mqtt"))
	session.SetMetrics(mqtt.NewMetrics(reg))
	health["mqtt"] = session

	var recorder neolink.Recorder
	influx, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorder = influx
		health["influxdb"] = influx
	}

	if cfg.Neolink.Process.Managed {
		mgr, err := startNeolink(ctx, cfg.Neolink.Process, log, reg)
		if err != nil {
			return err
		}
		defer func() {
			if stopErr := mgr.Stop(); stopErr != nil {
				log.Error("error stopping neolink", "error", stopErr)
			}
		}()
		health["neolink"] = mgr
	}

	provider, err := neolink.NewProvider(neolink.ProviderOptions{
		Session:    session,
		Registry:   registry,
		Settings:   settings,
		Recorder:   recorder,
		Metrics:    neolink.NewMetrics(reg),
		Logger:     log.Component("neolink"),
		ProviderID: cfg.Plugin.ID,
	})
	if err != nil {
		return fmt.Errorf("creating neolink provider: %w", err)
	}
	if err := provider.Start(ctx, cfg.Cameras); err != nil {
		return fmt.Errorf("starting neolink provider: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := provider.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping neolink provider", "error", stopErr)
		}
	}()
	log.Info("neolink provider started", "cameras", len(provider.Cameras()))

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Provider: provider,
			Registry: registry,
			Settings: settings,
			Audit:    audit.NewSQLiteRepository(db.DB),
			Health:   health,
			Gatherer: reg,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.API.JWTSecret == "" {
			log.Warn("API authentication disabled, api.jwt_secret is empty")
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// seedSettings copies server and RTSP values from the config file into the
// settings store. Empty config values leave stored settings untouched.
func seedSettings(ctx context.Context, store *device.SettingsStore, nc config.NeolinkConfig) error {
	seeds := map[string]string{
		device.SettingServerIP:     nc.ServerIP,
		device.SettingRTSPUsername: nc.RTSP.Username,
		device.SettingRTSPPassword: nc.RTSP.Password,
	}
	if nc.ServerPort != 0 && strconv.Itoa(nc.ServerPort) != device.DefaultServerPort {
		seeds[device.SettingServerPort] = strconv.Itoa(nc.ServerPort)
	}
	for key, value := range seeds {
		if value == "" {
			continue
		}
		if err := store.Put(ctx, key, value); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return nil
}

func startNeolink(ctx context.Context, pc config.ProcessConfig, log *logging.Logger, reg prometheus.Registerer) (*process.Manager, error) {
	cfg, err := process.NeolinkConfig(pc)
	if err != nil {
		return nil, fmt.Errorf("configuring neolink process: %w", err)
	}
	mgr := process.NewManager(cfg)
	mgr.SetLogger(log.Component("process"))
	mgr.SetMetrics(process.NewMetrics(reg))
	if err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting neolink: %w", err)
	}
	log.Info("neolink started", "pid", mgr.PID(), "config", pc.ConfigFile)
	return mgr, nil
}
