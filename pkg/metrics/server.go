package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the metrics port used when none is configured.
const DefaultPort = 9090

// Server exposes the registry over HTTP.
//
//	GET /metrics  Prometheus exposition (OpenMetrics when negotiated)
//	GET /healthz  liveness check, always "ok"
type Server struct {
	server *http.Server
	addr   string

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string

	// Port to listen on. Negative selects DefaultPort; 0 binds an ephemeral
	// port.
	Port int
}

// NewServer creates a metrics HTTP server in a stopped state.
func NewServer(config ServerConfig) *Server {
	if config.Port < 0 {
		config.Port = DefaultPort
	}

	mux := http.NewServeMux()
	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintln(w, "ok")
	})

	addr := net.JoinHostPort(config.BindAddress, strconv.Itoa(config.Port))
	return &Server{
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		addr:  addr,
		ready: make(chan struct{}),
	}
}

// Start binds the listener and serves until ctx is cancelled or serving
// fails. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to create metrics listener on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	logger.Info("Metrics server listening on http://%s/metrics", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		// ctx is already done; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx ends.
// Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("metrics server shutdown error: %w", serr)
			logger.Error("%v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return err
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
