// Package websocket implements the event fan-out adapter.
//
// Every client that completes the upgrade handshake gets its own bus
// subscription and receives each lifecycle event published after that point
// as one text frame. Client data frames are read only to service control
// frames and are otherwise discarded.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/metrics"
	"github.com/marmos91/atlasfs/pkg/registry"
)

// Protocol is the adapter's protocol name.
const Protocol = "websocket"

// Adapter implements adapter.Adapter for the WebSocket event stream.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. HTTP server stops accepting upgrades
//  3. Every client is sent a close frame and its subscription released
//  4. Wait for client loops to finish (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
type Adapter struct {
	config   Config
	metrics  metrics.WebSocketMetrics
	upgrader websocket.Upgrader

	registry *registry.Registry
	log      *logger.Logger

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	ready      chan struct{}
	boundPort  atomic.Int32

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// clients tracks running relay loops; Add happens under mu so it never
	// races with the shutdown Wait.
	clients     sync.WaitGroup
	clientCount atomic.Int32

	shutdownCtx   context.Context
	cancelClients context.CancelFunc

	// activeConnections maps client ID to *websocket.Conn for forced closure
	activeConnections sync.Map
}

// New creates a WebSocket adapter. A nil m disables metrics.
func New(config Config, m metrics.WebSocketMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid websocket adapter config: %w", err)
	}

	if m == nil {
		m = metrics.NewNoopWebSocketMetrics()
	}

	shutdownCtx, cancelClients := context.WithCancel(context.Background())

	return &Adapter{
		config:  config,
		metrics: m,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Observers are local tools and browsers on other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:           logger.Default(),
		ready:         make(chan struct{}),
		shutdown:      make(chan struct{}),
		shutdownCtx:   shutdownCtx,
		cancelClients: cancelClients,
	}, nil
}

// SetRegistry injects the shared process context.
func (s *Adapter) SetRegistry(reg *registry.Registry) {
	s.registry = reg
	s.log = reg.Logger()
}

// Serve binds the listener and serves upgrades until ctx is cancelled.
func (s *Adapter) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("websocket adapter: registry not set")
	}

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create websocket listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleUpgrade)
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		_ = listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}
	close(s.ready)

	s.log.Info("WebSocket server listening on ws://%s%s", listener.Addr(), s.config.Path)
	s.log.Debug("WebSocket config: write_timeout=%v ping_interval=%v max_clients=%d",
		s.config.WriteTimeout, s.config.PingInterval, s.config.MaxClients)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("WebSocket server shutdown signal received: %v", ctx.Err())
	case <-s.shutdown:
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			s.initiateShutdown()
			return fmt.Errorf("websocket server failed: %w", err)
		}
	}

	s.initiateShutdown()
	return s.gracefulShutdown()
}

func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Debug("WebSocket server shutdown initiated")

		s.mu.Lock()
		close(s.shutdown)
		httpServer := s.httpServer
		s.mu.Unlock()

		if httpServer != nil {
			// Upgraded connections are hijacked, so this only stops the
			// listener and idle HTTP connections.
			if err := httpServer.Close(); err != nil {
				s.log.Debug("Error closing websocket HTTP server: %v", err)
			}
		}

		s.cancelClients()
	})
}

func (s *Adapter) gracefulShutdown() error {
	active := s.clientCount.Load()
	s.log.Info("WebSocket graceful shutdown: waiting for %d client(s) (timeout: %v)",
		active, s.config.ShutdownTimeout)

	select {
	case <-s.waitClients():
		s.log.Info("WebSocket graceful shutdown complete: all clients disconnected")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.clientCount.Load()
		s.log.Warn("WebSocket shutdown timeout exceeded: %d client(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("websocket shutdown timeout: %d clients force-closed", remaining)
	}
}

func (s *Adapter) waitClients() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.clients.Wait()
		close(done)
	}()
	return done
}

func (s *Adapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(*websocket.Conn)
		if err := conn.Close(); err != nil {
			s.log.Debug("Error force-closing websocket client %s: %v", key, err)
		} else {
			closed++
		}
		return true
	})

	if closed > 0 {
		s.log.Info("Force-closed %d websocket client(s)", closed)
	}
}

// Stop initiates shutdown and waits for clients until ctx ends.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.waitClients():
		return nil
	case <-ctx.Done():
		s.log.Warn("WebSocket shutdown context cancelled: %d client(s) still active: %v",
			s.clientCount.Load(), ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// acquire reserves a client slot. It fails once shutdown has started or the
// client limit is reached.
func (s *Adapter) acquire() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.shutdown:
		return false, "server shutting down"
	default:
	}
	if s.config.MaxClients > 0 && int(s.clientCount.Load()) >= s.config.MaxClients {
		return false, "too many clients"
	}

	s.clients.Add(1)
	s.clientCount.Add(1)
	return true, ""
}

func (s *Adapter) release() {
	s.clientCount.Add(-1)
	s.clients.Done()
}

func (s *Adapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ok, reason := s.acquire()
	if !ok {
		s.log.Debug("Rejecting websocket client %s: %s", r.RemoteAddr, reason)
		http.Error(w, reason, http.StatusServiceUnavailable)
		return
	}
	defer s.release()

	// Subscribe before the 101 response goes out: once the peer's dial
	// returns, every later event must reach it.
	sub := s.registry.Bus().Subscribe()
	defer sub.Close()

	// On failure Upgrade has already answered with an HTTP error.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket handshake with %s failed: %v", r.RemoteAddr, err)
		s.metrics.RecordHandshakeFailure()
		return
	}

	id := s.registry.RegisterClient(Protocol, conn.RemoteAddr().String())
	defer s.registry.UnregisterClient(id)

	c := newClient(s, conn, id)
	s.activeConnections.Store(id, conn)
	defer s.activeConnections.Delete(id)

	s.metrics.RecordClientConnected()
	s.log.Info("WebSocket client connected from %s (active: %d)", c.addr, s.clientCount.Load())

	c.serve(s.shutdownCtx, sub)

	s.metrics.RecordClientDisconnected()
	s.log.Info("WebSocket client disconnected from %s", c.addr)
}

// Ready is closed once the listener is bound.
func (s *Adapter) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Serve binds it.
func (s *Adapter) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

// ActiveClients returns the number of connected clients.
func (s *Adapter) ActiveClients() int32 {
	return s.clientCount.Load()
}

func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

func (s *Adapter) Protocol() string {
	return Protocol
}
