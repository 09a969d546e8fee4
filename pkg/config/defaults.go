package config

import (
	"strings"
	"time"

	wire "github.com/marmos91/atlasfs/internal/protocol/command"
	"github.com/marmos91/atlasfs/pkg/adapter/command"
	"github.com/marmos91/atlasfs/pkg/adapter/websocket"
	"github.com/marmos91/atlasfs/pkg/events"
	"github.com/marmos91/atlasfs/pkg/processor"
	"github.com/marmos91/atlasfs/pkg/store/kv"
	kvbadger "github.com/marmos91/atlasfs/pkg/store/kv/badger"
)

// Default ports for the two listeners.
const (
	DefaultCommandPort   = 8080
	DefaultWebSocketPort = 9000
	DefaultMetricsPort   = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Enabled flags are never touched; their defaults come from viper
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyFilesystemDefaults(&cfg.Filesystem)
	applyEventsDefaults(&cfg.Events)
	applyCommandDefaults(&cfg.Adapters.Command)
	applyWebSocketDefaults(&cfg.Adapters.WebSocket)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.MaxBlockingOps == 0 {
		cfg.MaxBlockingOps = kv.DefaultMaxBlockingOps
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	// Applied for every type so generated config files show the section.
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/atlasfs/db"
	}
	if _, ok := cfg.Badger["sync_writes"]; !ok {
		cfg.Badger["sync_writes"] = true
	}
	if _, ok := cfg.Badger["gc_schedule"]; !ok {
		cfg.Badger["gc_schedule"] = "@every 10m"
	}
	if _, ok := cfg.Badger["gc_discard_ratio"]; !ok {
		cfg.Badger["gc_discard_ratio"] = kvbadger.DefaultGCDiscardRatio
	}
}

func applyFilesystemDefaults(cfg *FilesystemConfig) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = uint32(processor.DefaultDirMode)
	}
	if cfg.Marker == "" {
		cfg.Marker = processor.DefaultMarker
	}
}

func applyEventsDefaults(cfg *EventsConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = events.DefaultCapacity
	}
}

func applyCommandDefaults(cfg *command.Config) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultCommandPort
	}
	if cfg.Codec == "" {
		cfg.Codec = "protobuf"
	}
	if cfg.Framing == "" {
		cfg.Framing = command.FramingRecord
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = wire.DefaultMaxMessageSize
	}
	// MaxConnections, read/write/idle timeouts and rate limits default to 0
	// (disabled).
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyWebSocketDefaults(cfg *websocket.Config) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultWebSocketPort
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Registering viper defaults
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Command:   command.Config{Enabled: true},
			WebSocket: websocket.Config{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
