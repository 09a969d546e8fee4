package badger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/store/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, logger.LevelError)
}

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "db")
	}
	s, err := Open(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "db")
	s := openTestStore(t, Config{DBPath: path})
	defer s.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, quietLogger())
	assert.Error(t, err)
}

func TestOpenRejectsInvalidGCSchedule(t *testing.T) {
	_, err := Open(context.Background(), Config{
		DBPath:     filepath.Join(t.TempDir(), "db"),
		GCSchedule: "not a schedule",
	}, quietLogger())
	assert.Error(t, err)
}

func TestStoreOperations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Config{SyncWrites: true, GCSchedule: "@every 1h"})
	defer s.Close()

	require.NoError(t, s.Put(ctx, []byte("alpha"), []byte("created")))
	require.NoError(t, s.Put(ctx, []byte("beta"), []byte("created")))

	value, found, err := s.Get(ctx, []byte("alpha"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "created", string(value))

	_, found, err = s.Get(ctx, []byte("gamma"))
	require.NoError(t, err)
	assert.False(t, found)

	var keys []string
	require.NoError(t, s.Scan(ctx, nil, func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	assert.Equal(t, []string{"alpha", "beta"}, keys)

	require.NoError(t, s.Delete(ctx, []byte("alpha")))
	_, found, err = s.Get(ctx, []byte("alpha"))
	require.NoError(t, err)
	assert.False(t, found)

	assert.GreaterOrEqual(t, s.RunGC(), 0)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	s := openTestStore(t, Config{DBPath: path, SyncWrites: true})
	require.NoError(t, s.Put(ctx, []byte("alpha"), []byte("created")))
	require.NoError(t, s.Close())

	ro := openTestStore(t, Config{DBPath: path, ReadOnly: true})
	defer ro.Close()

	value, found, err := ro.Get(ctx, []byte("alpha"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "created", string(value))
}

func TestReadOnlyOpenNeverCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	_, err := Open(context.Background(), Config{DBPath: path, ReadOnly: true}, quietLogger())
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStoreThroughHandle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Config{})

	h := kv.NewHandle(kv.WithNamespace(s, "fsids"), kv.NewExecutor(2))
	require.NoError(t, h.Put(ctx, []byte("alpha"), []byte("created")))

	raw, found, err := s.Get(ctx, []byte("fsids/alpha"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "created", string(raw))

	require.NoError(t, h.Close())
	assert.ErrorIs(t, s.Put(ctx, []byte("k"), nil), kv.ErrClosed)
}
