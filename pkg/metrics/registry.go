// Package metrics defines the observability hooks of atlasfs.
//
// Components record through small interfaces (CommandMetrics, EventMetrics,
// WebSocketMetrics) and fall back to no-op implementations when metrics are
// off. The Prometheus-backed implementations live in the prometheus
// subpackage, so recording packages never import the client library.
//
//	metrics.InitRegistry()
//	bus := events.NewBus(10, prometheus.NewEventMetrics())
//	srv := metrics.NewServer(metrics.ServerConfig{Port: 9090})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every atlasfs series.
const Namespace = "atlasfs"

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process registry with the Go runtime and process
// collectors attached. Later calls are no-ops.
//
// Until it is called, GetRegistry returns nil and the prometheus
// constructors hand out no-op collectors.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}),
		)
		registry = reg
	})
}

// GetRegistry returns the process registry, nil when metrics are off.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Registerer returns the registry as a prometheus.Registerer for promauto.
// It panics if InitRegistry was not called; check IsEnabled first.
func Registerer() prometheus.Registerer {
	if registry == nil {
		panic("metrics: registry not initialized")
	}
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return registry != nil
}
