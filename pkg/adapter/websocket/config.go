package websocket

import (
	"fmt"
	"strings"
	"time"
)

// Config holds configuration parameters for the WebSocket event server.
type Config struct {
	// Enabled controls whether the WebSocket adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// BindAddress is the interface to listen on (default 127.0.0.1).
	BindAddress string `mapstructure:"bind_address"`

	// Port is the TCP port to listen on. 0 lets the OS pick one.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Path is the HTTP path that accepts upgrades (default "/").
	Path string `mapstructure:"path"`

	// WriteTimeout bounds sending one event frame. A client that cannot
	// take a frame within it is disconnected.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// PingInterval is how often idle clients are pinged. A client that
	// misses two pings is disconnected. 0 disables keepalive.
	PingInterval time.Duration `mapstructure:"ping_interval" validate:"min=0"`

	// MaxClients limits concurrent subscribers. 0 means unlimited.
	MaxClients int `mapstructure:"max_clients" validate:"min=0"`

	// ShutdownTimeout is the maximum time to wait for clients to
	// disconnect during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("invalid path %q: must start with /", c.Path)
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("invalid ping interval %v: must be >= 0", c.PingInterval)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("invalid MaxClients %d: must be >= 0", c.MaxClients)
	}
	return nil
}
