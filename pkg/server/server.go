package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/adapter"
	"github.com/marmos91/atlasfs/pkg/metrics"
	"github.com/marmos91/atlasfs/pkg/registry"
)

// DefaultStopTimeout bounds the Stop() calls issued during shutdown.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned when Serve is called more than once.
var ErrAlreadyServed = errors.New("server: Serve already called")

// AtlasServer manages the lifecycle of the network adapters that share one
// process registry.
//
// Architecture:
// The command port and the WebSocket event stream are both Adapter
// implementations. They share the registry, so a DELETE handled by the
// command adapter reaches WebSocket subscribers through the same event bus.
//
// Lifecycle:
//  1. Creation: New() with the registry
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation or the first adapter failure stops all
//     adapters
//
// Example usage:
//
//	srv := server.New(reg)
//	srv.AddAdapter(commandAdapter)
//	srv.AddAdapter(websocketAdapter)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type AtlasServer struct {
	registry *registry.Registry
	metrics  *metrics.Server

	stopTimeout time.Duration

	// mu protects adapters and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a server around reg.
//
// Panics if reg is nil (programmer error).
func New(reg *registry.Registry) *AtlasServer {
	if reg == nil {
		panic("registry cannot be nil")
	}

	return &AtlasServer{
		registry:    reg,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// SetMetricsServer attaches an optional metrics endpoint that runs for the
// lifetime of Serve. Metrics server failures are logged, never fatal.
func (s *AtlasServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// SetStopTimeout overrides DefaultStopTimeout.
func (s *AtlasServer) SetStopTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.stopTimeout = d
	}
}

// AddAdapter registers a protocol adapter and injects the registry.
//
// Each adapter must serve a different protocol and, unless it asks for an
// ephemeral port (0), listen on a different port.
//
// Returns:
//   - error if the adapter conflicts with an existing one or Serve() has
//     already been called
//
// Panics if a is nil (programmer error).
func (s *AtlasServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s adapter after Serve() has been called", a.Protocol())
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until ctx is cancelled or
// an adapter fails.
//
// Shutdown behavior:
// When ctx is cancelled or an adapter fails, every adapter receives Stop()
// in reverse registration order, and Serve waits for all of them to return.
//
// Returns:
//   - ctx.Err() if shutdown was triggered by context cancellation
//   - the failing adapter's error, wrapped with its protocol name
//   - ErrAlreadyServed on a second call
func (s *AtlasServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metrics
	s.mu.Unlock()

	logger.Info("Starting atlasfs with %d adapter(s)", len(adapters))

	// serveCtx also ends when an adapter fails, so every Serve loop sees it.
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(serveCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Buffered so that adapters failing together never block.
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(serveCtx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case serveCtx.Err() != nil:
				logger.Warn("%s adapter stopped with error during shutdown: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancel()
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("atlasfs stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order, sharing one stop timeout. Errors are logged and do not prevent the
// remaining adapters from being stopped.
func (s *AtlasServer) stopAllAdapters(adapters []adapter.Adapter) {
	s.mu.RLock()
	timeout := s.stopTimeout
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Registry returns the shared process context.
func (s *AtlasServer) Registry() *registry.Registry {
	return s.registry
}

// Adapters returns a snapshot of the registered adapters.
func (s *AtlasServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
