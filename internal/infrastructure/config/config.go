package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Valid camera ability names as written in configuration.
var validAbilities = map[string]bool{
	"battery":          true,
	"siren":            true,
	"floodlight":       true,
	"floodlight_tasks": true,
	"pir":              true,
}

// Valid PTZ axis names.
var validPTZAxes = map[string]bool{
	"pan":  true,
	"tilt": true,
	"zoom": true,
}

// Config is the root configuration structure for neolinkd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Plugin   PluginConfig   `yaml:"plugin"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Neolink  NeolinkConfig  `yaml:"neolink"`
	Cameras  []CameraConfig `yaml:"cameras"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PluginConfig identifies this plugin instance to the host.
type PluginConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
//
// Two credential sources exist: the host-wide shared broker (HostBroker) and
// the per-plugin override (Broker + Auth). UseHostBroker selects the shared one
// when it is configured.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig `yaml:"broker"`
	Auth           MQTTAuthConfig   `yaml:"auth"`
	HostBroker     HostBrokerConfig `yaml:"host_broker"`
	UseHostBroker  bool             `yaml:"use_host_broker"`
	ClientIDPrefix string           `yaml:"client_id_prefix"`
	QoS            int              `yaml:"qos"`
	KeepAlive      time.Duration    `yaml:"keep_alive"`
	ConnectTimeout time.Duration    `yaml:"connect_timeout"`
	PublishTimeout time.Duration    `yaml:"publish_timeout"`

	// RenewAfter forces a fresh connection once the current one is older
	// than this. Zero disables renewal.
	RenewAfter time.Duration `yaml:"renew_after"`
}

// MQTTBrokerConfig contains the per-plugin broker address.
// URI accepts mqtt://, mqtts://, tcp://, ssl://, ws:// and wss:// schemes.
type MQTTBrokerConfig struct {
	URI string `yaml:"uri"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HostBrokerConfig mirrors the host's shared MQTT broker settings.
type HostBrokerConfig struct {
	ExternalBroker string `yaml:"external_broker"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
}

// NeolinkConfig describes the neolink bridge this plugin talks to.
type NeolinkConfig struct {
	ServerIP   string        `yaml:"server_ip"`
	ServerPort int           `yaml:"server_port"`
	RTSP       RTSPConfig    `yaml:"rtsp"`
	Process    ProcessConfig `yaml:"process"`
}

// RTSPConfig holds the credentials neolink expects on its RTSP server.
type RTSPConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ProcessConfig contains settings for supervising a local neolink binary.
type ProcessConfig struct {
	// Managed indicates whether neolinkd should run neolink itself.
	// If false, neolink is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the neolink executable.
	// Default: "/usr/local/bin/neolink"
	Binary string `yaml:"binary"`

	// ConfigFile is the neolink TOML configuration passed via --config.
	ConfigFile string `yaml:"config_file"`

	RestartOnFailure   bool          `yaml:"restart_on_failure"`
	RestartDelay       time.Duration `yaml:"restart_delay"`
	MaxRestartDelay    time.Duration `yaml:"max_restart_delay"`
	MaxRestartAttempts int           `yaml:"max_restart_attempts"`
	GracefulTimeout    time.Duration `yaml:"graceful_timeout"`
}

// CameraConfig declares one camera known to the neolink bridge.
type CameraConfig struct {
	// Name is the camera name as configured in neolink. It keys every topic.
	Name                string        `yaml:"name"`
	Abilities           []string      `yaml:"abilities"`
	PTZ                 []string      `yaml:"ptz"`
	MotionTimeout       time.Duration `yaml:"motion_timeout"`
	BatteryPollInterval time.Duration `yaml:"battery_poll_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	JWTSecret string           `yaml:"jwt_secret"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NEOLINK_SECTION_KEY
// For example: NEOLINK_MQTT_URI, NEOLINK_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Plugin: PluginConfig{
			ID:   "neolink",
			Name: "Neolink",
		},
		Database: DatabaseConfig{
			Path:        "./data/neolink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				URI: "mqtt://localhost:1883",
			},
			ClientIDPrefix: "neolinkd",
			QoS:            0,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
			RenewAfter:     30 * time.Minute,
		},
		Neolink: NeolinkConfig{
			ServerPort: 8554,
			Process: ProcessConfig{
				Binary:             "/usr/local/bin/neolink",
				ConfigFile:         "/etc/neolink/neolink.toml",
				RestartOnFailure:   true,
				RestartDelay:       5 * time.Second,
				MaxRestartDelay:    2 * time.Minute,
				MaxRestartAttempts: 10,
				GracefulTimeout:    10 * time.Second,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NEOLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("NEOLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NEOLINK_MQTT_URI"); v != "" {
		cfg.MQTT.Broker.URI = v
	}
	if v := os.Getenv("NEOLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NEOLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("NEOLINK_MQTT_USE_HOST_BROKER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.UseHostBroker = b
		}
	}

	// Neolink
	if v := os.Getenv("NEOLINK_SERVER_IP"); v != "" {
		cfg.Neolink.ServerIP = v
	}
	if v := os.Getenv("NEOLINK_RTSP_PASSWORD"); v != "" {
		cfg.Neolink.RTSP.Password = v
	}

	// API
	if v := os.Getenv("NEOLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NEOLINK_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}
	if v := os.Getenv("NEOLINK_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("NEOLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Plugin.ID == "" {
		errs = append(errs, "plugin.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.Broker.URI == "" && (!c.MQTT.UseHostBroker || c.MQTT.HostBroker.ExternalBroker == "") {
		errs = append(errs, "mqtt.broker.uri is required unless mqtt.use_host_broker is set with host_broker.external_broker")
	}
	if c.MQTT.Broker.URI != "" {
		if _, err := url.Parse(c.MQTT.Broker.URI); err != nil {
			errs = append(errs, fmt.Sprintf("mqtt.broker.uri is invalid: %v", err))
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.RenewAfter < 0 {
		errs = append(errs, "mqtt.renew_after must not be negative")
	}

	if c.Neolink.ServerPort < 1 || c.Neolink.ServerPort > 65535 {
		errs = append(errs, "neolink.server_port must be between 1 and 65535")
	}
	if c.Neolink.Process.Managed && c.Neolink.Process.Binary == "" {
		errs = append(errs, "neolink.process.binary is required when neolink.process.managed is set")
	}

	errs = append(errs, c.validateCameras()...)

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	const minJWTSecretLength = 32
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "api.jwt_secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateCameras() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Cameras))

	for i, cam := range c.Cameras {
		if cam.Name == "" {
			errs = append(errs, fmt.Sprintf("cameras[%d].name is required", i))
			continue
		}
		if strings.ContainsAny(cam.Name, "/+#") {
			errs = append(errs, fmt.Sprintf("cameras[%d].name %q must not contain MQTT topic separators or wildcards", i, cam.Name))
		}
		if seen[cam.Name] {
			errs = append(errs, fmt.Sprintf("cameras[%d].name %q is duplicated", i, cam.Name))
		}
		seen[cam.Name] = true

		for _, a := range cam.Abilities {
			if !validAbilities[strings.ToLower(a)] {
				errs = append(errs, fmt.Sprintf("cameras[%d].abilities: unknown ability %q", i, a))
			}
		}
		for _, axis := range cam.PTZ {
			if !validPTZAxes[strings.ToLower(axis)] {
				errs = append(errs, fmt.Sprintf("cameras[%d].ptz: unknown axis %q", i, axis))
			}
		}
		if cam.MotionTimeout < 0 {
			errs = append(errs, fmt.Sprintf("cameras[%d].motion_timeout must not be negative", i))
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
