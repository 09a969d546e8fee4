package server

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/adapter/command"
	"github.com/marmos91/atlasfs/pkg/adapter/websocket"
	"github.com/marmos91/atlasfs/pkg/events"
	"github.com/marmos91/atlasfs/pkg/processor"
	"github.com/marmos91/atlasfs/pkg/registry"
	"github.com/marmos91/atlasfs/pkg/store/kv"
	"github.com/marmos91/atlasfs/pkg/store/kv/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves until its context ends, or fails at once if err is set.
type fakeAdapter struct {
	protocol string
	port     int
	err      error

	started   chan struct{}
	stopCalls atomic.Int32
	reg       *registry.Registry
}

func newFakeAdapter(protocol string, port int, err error) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, err: err, started: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	close(f.started)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func (f *fakeAdapter) SetRegistry(reg *registry.Registry) { f.reg = reg }
func (f *fakeAdapter) Stop(context.Context) error         { f.stopCalls.Add(1); return nil }
func (f *fakeAdapter) Protocol() string                   { return f.protocol }
func (f *fakeAdapter) Port() int                          { return f.port }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	log := logger.NewWithWriter(io.Discard, logger.LevelError)
	store := kv.NewHandle(memory.New(), nil)
	bus := events.NewBus(10, nil)
	proc := processor.New(afero.NewMemMapFs(), store, bus, processor.Options{Logger: log})

	reg, err := registry.New(registry.Components{Logger: log, Store: store, Bus: bus, Processor: proc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func serveAsync(srv *AtlasServer, ctx context.Context) chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	return done
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

// ============================================================================
// Registration Tests
// ============================================================================

func TestAddAdapterInjectsRegistry(t *testing.T) {
	reg := newTestRegistry(t)
	srv := New(reg)

	a := newFakeAdapter("command", 8080, nil)
	require.NoError(t, srv.AddAdapter(a))
	assert.Same(t, reg, a.reg)
	assert.Len(t, srv.Adapters(), 1)
	assert.Same(t, reg, srv.Registry())
}

func TestAddAdapterRejectsConflicts(t *testing.T) {
	srv := New(newTestRegistry(t))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("command", 8080, nil)))

	err := srv.AddAdapter(newFakeAdapter("command", 8081, nil))
	assert.ErrorContains(t, err, "already registered")

	err = srv.AddAdapter(newFakeAdapter("websocket", 8080, nil))
	assert.ErrorContains(t, err, "port 8080 already in use")

	assert.Len(t, srv.Adapters(), 1)
}

func TestEphemeralPortsDoNotConflict(t *testing.T) {
	srv := New(newTestRegistry(t))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("command", 0, nil)))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("websocket", 0, nil)))
}

func TestNewPanicsWithoutRegistry(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestServeWithoutAdapters(t *testing.T) {
	srv := New(newTestRegistry(t))
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServeStopsAllOnCancel(t *testing.T) {
	srv := New(newTestRegistry(t))
	a := newFakeAdapter("command", 1, nil)
	b := newFakeAdapter("websocket", 2, nil)
	require.NoError(t, srv.AddAdapter(a))
	require.NoError(t, srv.AddAdapter(b))

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(srv, ctx)

	<-a.started
	<-b.started
	cancel()

	err := waitDone(t, done)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), a.stopCalls.Load())
	assert.Equal(t, int32(1), b.stopCalls.Load())
}

func TestAdapterFailureStopsOthers(t *testing.T) {
	boom := errors.New("bind failed")

	srv := New(newTestRegistry(t))
	healthy := newFakeAdapter("command", 1, nil)
	failing := newFakeAdapter("websocket", 2, boom)
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(failing))

	err := waitDone(t, serveAsync(srv, context.Background()))
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "websocket adapter error")
	assert.Equal(t, int32(1), healthy.stopCalls.Load())
}

func TestServeOnlyOnce(t *testing.T) {
	srv := New(newTestRegistry(t))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("command", 1, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = waitDone(t, serveAsync(srv, ctx))

	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServed)
	assert.Error(t, srv.AddAdapter(newFakeAdapter("websocket", 2, nil)))
}

func TestServeRealAdapters(t *testing.T) {
	reg := newTestRegistry(t)
	srv := New(reg)
	srv.SetStopTimeout(2 * time.Second)

	cmd, err := command.New(command.Config{ShutdownTimeout: time.Second}, nil)
	require.NoError(t, err)
	ws, err := websocket.New(websocket.Config{ShutdownTimeout: time.Second}, nil)
	require.NoError(t, err)

	require.NoError(t, srv.AddAdapter(cmd))
	require.NoError(t, srv.AddAdapter(ws))

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(srv, ctx)

	for _, ready := range []<-chan struct{}{cmd.Ready(), ws.Ready()} {
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			t.Fatal("adapter did not bind")
		}
	}
	assert.NotZero(t, cmd.Port())
	assert.NotZero(t, ws.Port())

	cancel()
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
}
