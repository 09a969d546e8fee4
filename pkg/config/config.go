package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/adapter/command"
	"github.com/marmos91/atlasfs/pkg/adapter/websocket"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override,
// e.g. ATLASFS_ADAPTERS_COMMAND_PORT=9999.
const EnvPrefix = "ATLASFS"

// Config represents the complete atlasfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ATLASFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// The store section carries a type plus one map per engine; only the map
// matching the selected type is decoded, by the engine's own Config type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Store selects and configures the key-value store
	Store StoreConfig `mapstructure:"store"`

	// Filesystem controls where and how directories are created
	Filesystem FilesystemConfig `mapstructure:"filesystem"`

	// Events configures the broadcast bus
	Events EventsConfig `mapstructure:"events"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout bounds the Stop() calls issued to adapters
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port" validate:"min=0,max=65535"`
}

// StoreConfig specifies the key-value store.
type StoreConfig struct {
	// Type specifies which engine to use
	// Valid values: badger, memory
	Type string `mapstructure:"type" validate:"required,oneof=badger memory"`

	// Namespace partitions keys under "<namespace>/". Empty means none.
	Namespace string `mapstructure:"namespace"`

	// MaxBlockingOps bounds concurrent engine calls
	MaxBlockingOps int `mapstructure:"max_blocking_ops" validate:"min=0"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// FilesystemConfig controls directory creation.
type FilesystemConfig struct {
	// Root confines subjects beneath it. "." resolves them against the
	// working directory.
	Root string `mapstructure:"root" validate:"required"`

	// DirMode is the permission for new directories (e.g. 0755)
	DirMode uint32 `mapstructure:"dir_mode" validate:"lte=511"` // 511 = 0777 in decimal

	// Marker is the value recorded for each created directory
	Marker string `mapstructure:"marker"`
}

// EventsConfig configures the broadcast bus.
type EventsConfig struct {
	// Capacity is the per-subscriber buffer size
	Capacity int `mapstructure:"capacity" validate:"min=0"`
}

// AdaptersConfig contains all protocol adapter configurations.
// The adapters' own Config types are used directly to avoid duplication.
type AdaptersConfig struct {
	Command   command.Config   `mapstructure:"command"`
	WebSocket websocket.Config `mapstructure:"websocket"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables, defaults and the config file
// location.
//
// Every default is registered with viper so that AutomaticEnv can override
// keys that the config file does not mention.
func setupViper(v *viper.Viper, configPath string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := ToMap(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to build default config: %w", err)
	}
	for _, key := range flattenKeys("", defaults) {
		v.SetDefault(key.path, key.value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/atlasfs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
	}
	return nil
}

type flatKey struct {
	path  string
	value any
}

func flattenKeys(prefix string, m map[string]any) []flatKey {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var keys []flatKey
	for _, name := range names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if nested, ok := m[name].(map[string]any); ok && len(nested) > 0 {
			keys = append(keys, flattenKeys(path, nested)...)
			continue
		}
		keys = append(keys, flatKey{path: path, value: m[name]})
	}
	return keys
}

// readConfigFile reads the configuration file if it exists. A missing file
// means defaults plus environment.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	logger.Debug("Loaded configuration from %s", v.ConfigFileUsed())
	return nil
}

// NewLogger builds the process logger from cfg and installs it as the
// default.
func NewLogger(cfg LoggingConfig) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{Level: cfg.Level, Output: cfg.Output})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "atlasfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "atlasfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
