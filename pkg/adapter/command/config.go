package command

import (
	"fmt"
	"time"

	wire "github.com/marmos91/atlasfs/internal/protocol/command"
)

// Framing modes for the command port.
const (
	// FramingRecord delimits messages with a 4-byte record mark.
	FramingRecord = "record"

	// FramingRaw treats every socket read as one message. Messages split or
	// coalesced by TCP are misparsed; kept only for legacy clients.
	FramingRaw = "raw"
)

// Config holds configuration parameters for the command server.
//
// All timeout values are optional - zero means no timeout. Connection and
// rate limits are disabled by default.
type Config struct {
	// Enabled controls whether the command adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// BindAddress is the interface to listen on (default 127.0.0.1).
	BindAddress string `mapstructure:"bind_address"`

	// Port is the TCP port to listen on. 0 lets the OS pick one.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Codec selects the request encoding: "protobuf" (default) or "xdr".
	Codec string `mapstructure:"codec" validate:"omitempty,oneof=protobuf xdr"`

	// Framing selects how messages are delimited: "record" (default) or "raw".
	Framing string `mapstructure:"framing" validate:"omitempty,oneof=record raw"`

	// BufferSize is the per-connection read buffer in raw framing mode.
	BufferSize int `mapstructure:"buffer_size" validate:"min=0"`

	// MaxMessageSize caps a reassembled record-marked message.
	MaxMessageSize uint32 `mapstructure:"max_message_size"`

	// MaxConnections limits concurrent client connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// ReadTimeout bounds reading one request once the client starts sending.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum time to wait for active connections
	// during graceful shutdown before they are force-closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval at which connection counts are
	// logged. 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`

	// RateLimit throttles requests per client host.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client. 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the number of requests a client may send back to back.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
	if c.Codec == "" {
		c.Codec = "protobuf"
	}
	if c.Framing == "" {
		c.Framing = FramingRecord
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = wire.DefaultMaxMessageSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Framing != FramingRecord && c.Framing != FramingRaw {
		return fmt.Errorf("invalid framing %q: must be %q or %q", c.Framing, FramingRecord, FramingRaw)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must be >= 0")
	}
	return nil
}
