package process

import (
	"fmt"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

// NeolinkConfig builds the supervisor config for `neolink mqtt-rtsp`, which
// serves both the MQTT bridge and the RTSP streams.
func NeolinkConfig(pc config.ProcessConfig) (Config, error) {
	if pc.Binary == "" {
		return Config{}, fmt.Errorf("neolink binary path is required")
	}
	if pc.ConfigFile == "" {
		return Config{}, fmt.Errorf("neolink config file is required")
	}
	return Config{
		Name:               "neolink",
		Binary:             pc.Binary,
		Args:               []string{"mqtt-rtsp", "--config", pc.ConfigFile},
		RestartOnFailure:   pc.RestartOnFailure,
		RestartDelay:       pc.RestartDelay,
		MaxRestartDelay:    pc.MaxRestartDelay,
		MaxRestartAttempts: pc.MaxRestartAttempts,
		GracefulTimeout:    pc.GracefulTimeout,
	}, nil
}
