package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/apocaliss92/scrypted-neolink/internal/auth"
	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/mqtt"
)

// defaultConfigPath is used when neither --config nor NEOLINK_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "neolinkd",
		Short:         "Bridge neolink's MQTT camera topics into the host device model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default $NEOLINK_CONFIG or "+defaultConfigPath+")")

	load := func() (*config.Config, error) { return loadConfig(cfgFile) }

	root.AddCommand(
		newServeCmd(load),
		newTopicsCmd(),
		newTokenCmd(load),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics <camera>",
		Short: "Print the MQTT topics neolink uses for a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := device.ValidateCameraName(args[0]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range mqtt.TopicsFor(args[0]).All() {
				fmt.Fprintf(out, "%-20s %s\n", t.Role, t.Topic)
			}
			return nil
		},
	}
}

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token signed with api.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.API.JWTSecret == "" {
				return errors.New("api.jwt_secret is not set; the API runs without authentication")
			}
			token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.API.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. the client name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neolinkd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig reads the config file. A missing file at the default location
// falls back to built-in defaults; an explicitly named file must exist.
func loadConfig(flagPath string) (*config.Config, error) {
	path, explicit := flagPath, flagPath != ""
	if !explicit {
		if env := os.Getenv("NEOLINK_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, fmt.Errorf("validating default config: %w", vErr)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config %s: %w", path, err)
}
