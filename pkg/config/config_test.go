package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/atlasfs/internal/protocol/command"
	"github.com/marmos91/atlasfs/pkg/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ============================================================================
// Load Tests
// ============================================================================

func TestLoadNoConfigFile(t *testing.T) {
	// A path that does not exist keeps the user's own config out of the test.
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Server.Metrics.Enabled)

	assert.Equal(t, "badger", cfg.Store.Type)
	assert.Equal(t, "/tmp/atlasfs/db", cfg.Store.Badger["db_path"])
	assert.Equal(t, ".", cfg.Filesystem.Root)
	assert.Equal(t, uint32(0o755), cfg.Filesystem.DirMode)
	assert.Equal(t, 10, cfg.Events.Capacity)

	assert.True(t, cfg.Adapters.Command.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Adapters.Command.BindAddress)
	assert.Equal(t, 8080, cfg.Adapters.Command.Port)
	assert.Equal(t, "protobuf", cfg.Adapters.Command.Codec)
	assert.Equal(t, "record", cfg.Adapters.Command.Framing)

	assert.True(t, cfg.Adapters.WebSocket.Enabled)
	assert.Equal(t, 9000, cfg.Adapters.WebSocket.Port)
	assert.Equal(t, "/", cfg.Adapters.WebSocket.Path)
	assert.Equal(t, 30*time.Second, cfg.Adapters.WebSocket.PingInterval)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug

store:
  type: memory
  namespace: dirs

filesystem:
  root: /srv/atlas

adapters:
  command:
    port: 7000
    codec: xdr
    max_connections: 16
    read_timeout: 5s
    rate_limit:
      requests_per_second: 50
      burst: 10
  websocket:
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "dirs", cfg.Store.Namespace)
	assert.Equal(t, "/srv/atlas", cfg.Filesystem.Root)

	cmd := cfg.Adapters.Command
	assert.True(t, cmd.Enabled)
	assert.Equal(t, 7000, cmd.Port)
	assert.Equal(t, "xdr", cmd.Codec)
	assert.Equal(t, 16, cmd.MaxConnections)
	assert.Equal(t, 5*time.Second, cmd.ReadTimeout)
	assert.Equal(t, 50.0, cmd.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cmd.RateLimit.Burst)

	assert.False(t, cfg.Adapters.WebSocket.Enabled)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[store]
type = "memory"

[adapters.command]
port = 7100
framing = "raw"

[adapters.websocket]
port = 7200
path = "/events"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 7100, cfg.Adapters.Command.Port)
	assert.Equal(t, "raw", cfg.Adapters.Command.Framing)
	assert.Equal(t, 7200, cfg.Adapters.WebSocket.Port)
	assert.Equal(t, "/events", cfg.Adapters.WebSocket.Path)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ATLASFS_ADAPTERS_COMMAND_PORT", "7777")
	t.Setenv("ATLASFS_STORE_TYPE", "memory")
	t.Setenv("ATLASFS_SERVER_SHUTDOWN_TIMEOUT", "5s")

	path := writeConfig(t, "config.yaml", `
adapters:
  command:
    port: 7000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Adapters.Command.Port)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid.yaml", "logging: [level: INFO\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
store:
  type: rocksdb
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "validation failed")
}

// ============================================================================
// Defaults Tests
// ============================================================================

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Output: "stderr"},
		Store:   StoreConfig{Type: "memory", Badger: map[string]any{"db_path": "/data"}},
		Events:  EventsConfig{Capacity: 3},
	}
	cfg.Adapters.Command.Port = 1234

	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "/data", cfg.Store.Badger["db_path"])
	assert.Equal(t, "@every 10m", cfg.Store.Badger["gc_schedule"])
	assert.Equal(t, 3, cfg.Events.Capacity)
	assert.Equal(t, 1234, cfg.Adapters.Command.Port)
	assert.Equal(t, uint32(command.DefaultMaxMessageSize), cfg.Adapters.Command.MaxMessageSize)
	assert.Equal(t, processor.DefaultMarker, cfg.Filesystem.Marker)
}

func TestApplyDefaultsLeavesAdaptersDisabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.False(t, cfg.Adapters.Command.Enabled)
	assert.False(t, cfg.Adapters.WebSocket.Enabled)
}

func TestGetDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.Adapters.Command.Enabled)
	assert.True(t, cfg.Adapters.WebSocket.Enabled)
}

// ============================================================================
// Validation Tests
// ============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "VERBOSE" },
			wantErr: "Level",
		},
		{
			name:    "unknown store type",
			mutate:  func(c *Config) { c.Store.Type = "bolt" },
			wantErr: "Type",
		},
		{
			name: "no adapters",
			mutate: func(c *Config) {
				c.Adapters.Command.Enabled = false
				c.Adapters.WebSocket.Enabled = false
			},
			wantErr: "at least one adapter",
		},
		{
			name:    "shared port",
			mutate:  func(c *Config) { c.Adapters.WebSocket.Port = c.Adapters.Command.Port },
			wantErr: "both listen on",
		},
		{
			name: "metrics port clash",
			mutate: func(c *Config) {
				c.Server.Metrics.Enabled = true
				c.Server.Metrics.Port = c.Adapters.WebSocket.Port
			},
			wantErr: "already used by the websocket adapter",
		},
		{
			name:    "bad codec",
			mutate:  func(c *Config) { c.Adapters.Command.Codec = "json" },
			wantErr: "Codec",
		},
		{
			name:    "dir mode out of range",
			mutate:  func(c *Config) { c.Filesystem.DirMode = 0o1777 },
			wantErr: "DirMode",
		},
		{
			name:    "bad gc schedule",
			mutate:  func(c *Config) { c.Store.Badger["gc_schedule"] = "whenever" },
			wantErr: "gc_schedule",
		},
		{
			name:    "missing badger path",
			mutate:  func(c *Config) { c.Store.Badger["db_path"] = "" },
			wantErr: "store.badger",
		},
		{
			name: "memory store ignores badger section",
			mutate: func(c *Config) {
				c.Store.Type = "memory"
				c.Store.Badger["db_path"] = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ============================================================================
// Factory Tests
// ============================================================================

func TestCreateStoreMemory(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()
	cfg.Store.Type = "memory"
	cfg.Store.Namespace = "ns"

	store, err := CreateStore(ctx, &cfg.Store, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, []byte("alpha"), []byte("created")))
	value, ok, err := store.Get(ctx, []byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "created", string(value))
}

func TestCreateStoreBadger(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "db")

	cfg := GetDefaultConfig()
	cfg.Store.Badger["db_path"] = dbPath
	cfg.Store.Badger["gc_schedule"] = ""

	store, err := CreateStore(ctx, &cfg.Store, nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, store.Close())

	assert.DirExists(t, dbPath)
}

func TestCreateStoreUnknownType(t *testing.T) {
	_, err := CreateStore(context.Background(), &StoreConfig{Type: "bolt"}, nil)
	assert.Error(t, err)
}

func TestBadgerConfigDecoding(t *testing.T) {
	cfg := &StoreConfig{Badger: map[string]any{
		"db_path":          "/var/lib/atlasfs",
		"sync_writes":      "true",
		"gc_schedule":      "@hourly",
		"gc_discard_ratio": 0.7,
	}}

	badgerCfg, err := BadgerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/atlasfs", badgerCfg.DBPath)
	assert.True(t, badgerCfg.SyncWrites)
	assert.Equal(t, "@hourly", badgerCfg.GCSchedule)
	assert.Equal(t, 0.7, badgerCfg.GCDiscardRatio)
	assert.False(t, badgerCfg.ReadOnly)
}

func TestInitializeRegistry(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	cfg := GetDefaultConfig()
	cfg.Store.Type = "memory"
	cfg.Filesystem.Root = root
	cfg.Events.Capacity = 4

	reg, err := InitializeRegistry(ctx, cfg, InitializeMetrics(cfg))
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, 4, reg.Bus().Capacity())

	outcome := reg.Processor().Process(ctx, &command.Request{Operation: command.OpCreate, Subject: []byte("alpha")})
	assert.Equal(t, "Directory 'alpha' created", outcome.Message)
	assert.DirExists(t, filepath.Join(root, "alpha"))
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()

	adapters, err := CreateAdapters(cfg, InitializeMetrics(cfg))
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "command", adapters[0].Protocol())
	assert.Equal(t, 8080, adapters[0].Port())
	assert.Equal(t, "websocket", adapters[1].Protocol())
	assert.Equal(t, 9000, adapters[1].Port())

	cfg.Adapters.Command.Enabled = false
	cfg.Adapters.WebSocket.Enabled = false
	_, err = CreateAdapters(cfg, nil)
	assert.Error(t, err)
}

func TestInitializeMetricsDisabled(t *testing.T) {
	m := InitializeMetrics(GetDefaultConfig())
	assert.Nil(t, m.Server)
	assert.NotNil(t, m.Command)
	assert.NotNil(t, m.Events)
	assert.NotNil(t, m.WebSocket)
}
