package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. STUDIOSYNC_ADDR.
const EnvPrefix = "STUDIOSYNC"

// Duration is a time.Duration written as "30s" in every config format.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr" envconfig:"ADDR"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" envconfig:"LOG_FORMAT" validate:"omitempty,oneof=json console"`

	// ExecutorConcurrency bounds parallel tool calls; 1 keeps them strictly ordered.
	ExecutorConcurrency int `json:"executor_concurrency" yaml:"executor_concurrency" toml:"executor_concurrency" envconfig:"EXECUTOR_CONCURRENCY" validate:"gte=0,lte=64"`

	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" toml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL" validate:"gte=0"`
	StaleAfter        Duration `json:"stale_after" yaml:"stale_after" toml:"stale_after" envconfig:"STALE_AFTER" validate:"gte=0"`
	SendTimeout       Duration `json:"send_timeout" yaml:"send_timeout" toml:"send_timeout" envconfig:"SEND_TIMEOUT" validate:"gte=0"`
	SendBuffer        int      `json:"send_buffer" yaml:"send_buffer" toml:"send_buffer" envconfig:"SEND_BUFFER" validate:"gte=0"`
	MaxMessageBytes   int64    `json:"max_message_bytes" yaml:"max_message_bytes" toml:"max_message_bytes" envconfig:"MAX_MESSAGE_BYTES" validate:"gte=0"`
	MaxBodyBytes      int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gte=0"`

	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" envconfig:"CORS_ORIGINS"`
	DefaultGroups []string `json:"default_groups" yaml:"default_groups" toml:"default_groups" envconfig:"DEFAULT_GROUPS"`

	// Models seeds the registry at startup: model id to initial state.
	Models map[string]map[string]any `json:"models" yaml:"models" toml:"models" ignored:"true"`
}

// Defaults used by WithDefaults.
const (
	DefaultAddr                = ":8080"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultExecutorConcurrency = 1
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultStaleAfter          = 60 * time.Second
	DefaultSendTimeout         = 5 * time.Second
	DefaultSendBuffer          = 64
	DefaultMaxMessageBytes     = 1 << 20
	DefaultMaxBodyBytes        = 1 << 20
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := expandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// expandHome expands a leading "~" to the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// ApplyEnv overlays STUDIOSYNC_* environment variables onto cfg. Unset
// variables leave the field alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}

// WithDefaults fills every unspecified field.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.ExecutorConcurrency <= 0 {
		c.ExecutorConcurrency = DefaultExecutorConcurrency
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = Duration(DefaultHeartbeatInterval)
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = Duration(DefaultStaleAfter)
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = Duration(DefaultSendTimeout)
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that connections are only declared
// stale after at least one heartbeat.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.HeartbeatInterval > 0 && c.StaleAfter > 0 && c.StaleAfter < c.HeartbeatInterval {
		return fmt.Errorf("invalid config: stale_after (%s) must be >= heartbeat_interval (%s)",
			c.StaleAfter.D(), c.HeartbeatInterval.D())
	}
	return nil
}

// Resolve loads path (when set), applies env overrides and defaults, and
// validates the result.
func Resolve(path string) (Config, error) {
	var cfg Config
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}
