package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/atlasfs/internal/logger"
	cmdadapter "github.com/marmos91/atlasfs/pkg/adapter/command"
	"github.com/marmos91/atlasfs/pkg/config"
	kvbadger "github.com/marmos91/atlasfs/pkg/store/kv/badger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Helpers
// ============================================================================

// resetFlags restores every flag to its default so tests do not leak state
// through the package-level command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Isolate from any config file on the host.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

func startCommandPort(t *testing.T) (string, string) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Store.Type = "memory"
	cfg.Filesystem.Root = t.TempDir()
	reg, err := config.InitializeRegistry(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	adapter, err := cmdadapter.New(cmdadapter.Config{Port: 0}, nil)
	require.NoError(t, err)
	adapter.SetRegistry(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- adapter.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-adapter.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("command port did not start")
	}
	return adapter.Addr().String(), cfg.Filesystem.Root
}

func seedBadger(t *testing.T, dir string, entries map[string]string) {
	t.Helper()

	store, err := kvbadger.Open(context.Background(), kvbadger.Config{DBPath: dir}, nil)
	require.NoError(t, err)
	for k, v := range entries {
		require.NoError(t, store.Put(context.Background(), []byte(k), []byte(v)))
	}
	require.NoError(t, store.Close())
}

// ============================================================================
// version / init / config
// ============================================================================

func TestVersionShort(t *testing.T) {
	Version = "v1.2.3"
	t.Cleanup(func() { Version = "dev" })

	out, err := executeCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3\n", out)
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.toml")

	out, err := executeCommand(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = config.Load(path)
	assert.NoError(t, err)

	_, err = executeCommand(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = executeCommand(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestConfigShowAppliesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := config.InitConfigToPath(path, false)
	require.NoError(t, err)

	t.Setenv("ATLASFS_ADAPTERS_COMMAND_CODEC", "xdr")

	out, err := executeCommand(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "codec: xdr")
}

// ============================================================================
// send
// ============================================================================

func TestSendCreateAndDelete(t *testing.T) {
	addr, root := startCommandPort(t)

	out, err := executeCommand(t, "send", "CREATE", "alpha", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "Directory 'alpha' created\n", out)
	assert.DirExists(t, filepath.Join(root, "alpha"))

	out, err = executeCommand(t, "send", "delete", "alpha", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "Directory 'alpha' deleted\n", out)
	assert.NoDirExists(t, filepath.Join(root, "alpha"))
}

func TestSendNumericOpcodes(t *testing.T) {
	addr, _ := startCommandPort(t)

	out, err := executeCommand(t, "send", "4", "x", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "POKE\n", out)

	out, err = executeCommand(t, "send", "42", "x", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "error\n", out)
}

func TestSendRejectsBadArguments(t *testing.T) {
	_, err := executeCommand(t, "send", "FROB", "x")
	assert.ErrorContains(t, err, "unknown opcode")

	_, err = executeCommand(t, "send", "CREATE", "x", "--codec", "json")
	assert.ErrorContains(t, err, "unknown codec")

	_, err = executeCommand(t, "send", "CREATE")
	assert.Error(t, err)
}

func TestSendRawRejectsEmptyPayload(t *testing.T) {
	// Nothing listens on the address: the error must come before the dial.
	_, err := executeCommand(t, "send", "CREATE", "", "--framing", "raw", "--addr", "127.0.0.1:1", "--timeout", "1s")
	assert.ErrorContains(t, err, "zero bytes")
	assert.NotContains(t, err.Error(), "failed to connect")
}

func TestSendConnectionRefused(t *testing.T) {
	_, err := executeCommand(t, "send", "CREATE", "x", "--addr", "127.0.0.1:1", "--timeout", "1s")
	assert.ErrorContains(t, err, "failed to connect")
}

// ============================================================================
// dump
// ============================================================================

func TestDumpPlain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	seedBadger(t, dir, map[string]string{
		"alpha":              "created",
		string([]byte{0xff}): "created",
	})

	out, err := executeCommand(t, "dump", "--db-path", dir, "--format", "plain")
	require.NoError(t, err)
	assert.Equal(t, "alpha\tcreated\n0xff\tcreated\n", out)
}

func TestDumpNamespace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	seedBadger(t, dir, map[string]string{
		"alpha":     "created",
		"tenant/b":  "created",
		"tenant/c":  "created",
		"tenant2/d": "created",
	})

	out, err := executeCommand(t, "dump", "--db-path", dir, "--format", "plain", "--namespace", "tenant")
	require.NoError(t, err)
	assert.Equal(t, "b\tcreated\nc\tcreated\n", out)

	out, err = executeCommand(t, "dump", "--db-path", dir, "--format", "plain", "--all", "--prefix", "tenant/")
	require.NoError(t, err)
	assert.Equal(t, "tenant/b\tcreated\ntenant/c\tcreated\n", out)
}

func TestDumpTable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	seedBadger(t, dir, map[string]string{"alpha": "created"})

	out, err := executeCommand(t, "dump", "--db-path", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "1 entries")
}

func TestDumpMissingDatabase(t *testing.T) {
	_, err := executeCommand(t, "dump", "--db-path", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDumpRejectsUnknownFormat(t *testing.T) {
	_, err := executeCommand(t, "dump", "--format", "json")
	assert.ErrorContains(t, err, "unknown format")
}

func TestMain(m *testing.M) {
	logger.SetDefault(logger.NewWithWriter(&bytes.Buffer{}, logger.LevelError))
	os.Exit(m.Run())
}
