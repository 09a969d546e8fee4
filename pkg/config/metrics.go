package config

import (
	"github.com/marmos91/atlasfs/pkg/metrics"
	promMetrics "github.com/marmos91/atlasfs/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Collectors below are never nil; they are no-ops when metrics are disabled.
	Command   metrics.CommandMetrics
	Events    metrics.EventMetrics
	WebSocket metrics.WebSocketMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned along with the HTTP server.
// Otherwise the server is nil and every collector is a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Command:   metrics.NewNoopCommandMetrics(),
			Events:    metrics.NewNoopEventMetrics(),
			WebSocket: metrics.NewNoopWebSocketMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		BindAddress: cfg.Server.Metrics.BindAddress,
		Port:        cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:    server,
		Command:   promMetrics.NewCommandMetrics(),
		Events:    promMetrics.NewEventMetrics(),
		WebSocket: promMetrics.NewWebSocketMetrics(),
	}
}
