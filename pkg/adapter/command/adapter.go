// Package command implements the TCP command port adapter.
//
// Every accepted connection runs its own read-decode-process-respond loop:
// request N+1 is not read before the response to request N has been written.
// Connections share nothing but the process registry (store handle, event
// bus, processor).
package command

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/atlasfs/internal/logger"
	wire "github.com/marmos91/atlasfs/internal/protocol/command"
	"github.com/marmos91/atlasfs/internal/ratelimiter"
	"github.com/marmos91/atlasfs/pkg/metrics"
	"github.com/marmos91/atlasfs/pkg/registry"
)

// Protocol is the adapter's protocol name.
const Protocol = "command"

// Adapter implements adapter.Adapter for the binary command protocol.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled: idle connections stop reading, a connection in
//     the middle of a request finishes it and writes the response first
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use.
type Adapter struct {
	config  Config
	codec   wire.Codec
	metrics metrics.CommandMetrics
	limiter *ratelimiter.Keyed

	registry *registry.Registry
	log      *logger.Logger

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	boundPort atomic.Int32

	// activeConns tracks all currently active connections for graceful shutdown
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// connSemaphore limits concurrent connections; nil means unlimited
	connSemaphore chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// New creates a command adapter. A nil m disables metrics.
func New(config Config, m metrics.CommandMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid command adapter config: %w", err)
	}

	codec, err := wire.NewCodec(config.Codec)
	if err != nil {
		return nil, err
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	if m == nil {
		m = metrics.NewNoopCommandMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		codec:          codec,
		metrics:        m,
		limiter:        ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, 0),
		log:            logger.Default(),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// SetRegistry injects the shared process context.
func (s *Adapter) SetRegistry(reg *registry.Registry) {
	s.registry = reg
	s.log = reg.Logger()
}

// Serve binds the listener and accepts connections until ctx is cancelled.
func (s *Adapter) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("command adapter: registry not set")
	}

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create command listener on %s: %w", addr, err)
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
	s.mu.Unlock()

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}
	close(s.ready)

	s.log.Info("Command server listening on %s (codec=%s framing=%s)",
		listener.Addr(), s.codec.Name(), s.config.Framing)
	s.log.Debug("Command config: max_connections=%d read_timeout=%v write_timeout=%v idle_timeout=%v rate_limit=%v/%d",
		s.config.MaxConnections, s.config.ReadTimeout, s.config.WriteTimeout, s.config.IdleTimeout,
		s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
	if s.config.Framing == FramingRaw {
		s.log.Warn("Command server uses raw framing: messages split or merged by TCP will be misparsed")
	}

	go func() {
		select {
		case <-ctx.Done():
			s.log.Info("Command server shutdown signal received: %v", ctx.Err())
		case <-s.shutdown:
		}
		s.initiateShutdown()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				s.log.Debug("Error accepting command connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		current := s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(current)

		s.log.Debug("Command connection accepted from %s (active: %d)", connAddr, current)

		c := newConnection(s, tcpConn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)

				current := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(current)

				s.log.Debug("Command connection closed from %s (active: %d)", addr, current)
				s.activeConns.Done()
			}()

			c.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Debug("Command server shutdown initiated")

		close(s.shutdown)

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				s.log.Debug("Error closing command listener: %v", err)
			}
		}

		s.cancelRequests()
	})
}

func (s *Adapter) gracefulShutdown() error {
	active := s.connCount.Load()
	s.log.Info("Command graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		active, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Command graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		s.log.Warn("Command shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("command shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Adapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			s.log.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		s.log.Info("Force-closed %d command connection(s)", closed)
	}
}

// Stop initiates shutdown and waits for active connections until ctx ends.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		s.log.Warn("Command shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

func (s *Adapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.log.Info("Command metrics: %s", s.metricsSummary())
		}
	}
}

// metricsSummary reports this adapter's live connections alongside every
// client the registry knows about, grouped by protocol.
func (s *Adapter) metricsSummary() string {
	clients := s.registry.ListClients()

	perProtocol := make(map[string]int)
	for _, c := range clients {
		perProtocol[c.Protocol]++
	}
	protocols := make([]string, 0, len(perProtocol))
	for p := range perProtocol {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)

	var b strings.Builder
	fmt.Fprintf(&b, "active_connections=%d clients=%d", s.connCount.Load(), len(clients))
	for _, p := range protocols {
		fmt.Fprintf(&b, " %s_clients=%d", p, perProtocol[p])
	}
	// ListClients is ordered by connect time.
	if len(clients) > 0 {
		oldest := clients[0]
		fmt.Fprintf(&b, " oldest=%s(%s, %s)", oldest.RemoteAddr, oldest.Protocol,
			time.Since(oldest.ConnectedAt).Truncate(time.Second))
	}
	return b.String()
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

// ActiveConnections returns the number of open connections.
func (s *Adapter) ActiveConnections() int32 {
	return s.connCount.Load()
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
