package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"studiosync/internal/config"
)

type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func isConfigError(err error) bool {
	var ce configError
	return errors.As(err, &ce)
}

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	addr       string
	logLevel   string
}

// resolve builds the effective config: file, then env, then flags.
func (o *options) resolve() (config.Config, error) {
	cfg, err := config.Resolve(o.configPath)
	if err != nil {
		return cfg, configError{err}
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
		if err := cfg.Validate(); err != nil {
			return cfg, configError{err}
		}
	}
	return cfg, nil
}

func buildRootCmd() *cobra.Command {
	opts := &options{configPath: os.Getenv(config.EnvPrefix + "_CONFIG")}
	root := &cobra.Command{
		Use:           "studiosync",
		Short:         "Shared model state and ordered tool execution over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", opts.configPath, "Config file (.yaml|.yml|.json|.toml), defaults STUDIOSYNC_CONFIG")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "HTTP listen address, overrides config, e.g. :8080")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP and WebSocket server",
		Example: "  studiosync serve --config studiosync.yaml\n  STUDIOSYNC_ADDR=:9000 studiosync serve",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			log := newLogger(cfg, os.Stderr)
			return serve(cmd.Context(), cfg, log)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}

	root.AddCommand(serveCmd, configCmd)
	root.SetContext(context.Background())
	return root
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// newLogger builds the process logger from log_level and log_format.
func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("svc", "studiosync").Logger()
}
