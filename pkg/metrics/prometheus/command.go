// Package prometheus implements the metrics interfaces with Prometheus
// collectors registered in the global atlasfs registry.
//
// Constructors return a single shared instance per process, since a
// collector may only be registered once.
package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/atlasfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// commandMetrics is the Prometheus implementation of metrics.CommandMetrics.
type commandMetrics struct {
	commandsTotal          *prometheus.CounterVec
	commandDuration        *prometheus.HistogramVec
	decodeErrors           *prometheus.CounterVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	rateLimited            prometheus.Counter
}

var (
	commandOnce     sync.Once
	commandInstance metrics.CommandMetrics
)

// NewCommandMetrics returns the Prometheus-backed CommandMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewCommandMetrics() metrics.CommandMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopCommandMetrics()
	}

	commandOnce.Do(func() {
		reg := metrics.Registerer()

		commandInstance = &commandMetrics{
			commandsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "atlasfs_commands_total",
					Help: "Total number of processed commands by opcode and outcome",
				},
				[]string{"opcode", "outcome"},
			),
			commandDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "atlasfs_command_duration_milliseconds",
					Help: "Time spent processing commands in milliseconds",
					Buckets: []float64{
						0.1,  // 100us
						1,    // 1ms
						10,   // 10ms
						100,  // 100ms
						1000, // 1s
					},
				},
				[]string{"opcode"},
			),
			decodeErrors: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "atlasfs_command_decode_errors_total",
					Help: "Requests that could not be decoded",
				},
				[]string{"codec"},
			),
			bytesTransferred: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "atlasfs_command_bytes_total",
					Help: "Bytes read from and written to command clients",
				},
				[]string{"direction"},
			),
			activeConnections: promauto.With(reg).NewGauge(
				prometheus.GaugeOpts{
					Name: "atlasfs_command_connections_active",
					Help: "Current number of open command connections",
				},
			),
			connectionsAccepted: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "atlasfs_command_connections_accepted_total",
					Help: "Total number of accepted command connections",
				},
			),
			connectionsClosed: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "atlasfs_command_connections_closed_total",
					Help: "Total number of closed command connections",
				},
			),
			connectionsForceClosed: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "atlasfs_command_connections_force_closed_total",
					Help: "Connections closed because the shutdown timeout expired",
				},
			),
			rateLimited: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "atlasfs_command_rate_limited_total",
					Help: "Requests rejected by the rate limiter",
				},
			),
		}
	})

	return commandInstance
}

func (m *commandMetrics) RecordCommand(opcode, outcome string, duration time.Duration) {
	m.commandsTotal.WithLabelValues(opcode, outcome).Inc()
	m.commandDuration.WithLabelValues(opcode).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *commandMetrics) RecordDecodeError(codec string) {
	m.decodeErrors.WithLabelValues(codec).Inc()
}

func (m *commandMetrics) RecordBytes(direction string, bytes int) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *commandMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *commandMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *commandMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *commandMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *commandMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
