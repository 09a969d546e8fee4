package prometheus

import (
	"sync"

	"github.com/marmos91/atlasfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	published   prometheus.Counter
	deliveries  prometheus.Counter
	dropped     prometheus.Counter
	subscribers prometheus.Gauge
}

var (
	eventOnce     sync.Once
	eventInstance metrics.EventMetrics
)

// NewEventMetrics returns the Prometheus-backed EventMetrics.
func NewEventMetrics() metrics.EventMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopEventMetrics()
	}

	eventOnce.Do(func() {
		reg := metrics.Registerer()

		eventInstance = &eventMetrics{
			published: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_events_published_total",
				Help: "Lifecycle events published on the bus",
			}),
			deliveries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_events_queued_total",
				Help: "Event copies queued for subscribers",
			}),
			dropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_events_dropped_total",
				Help: "Events lost by subscribers that fell behind",
			}),
			subscribers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "atlasfs_events_subscribers",
				Help: "Current number of bus subscribers",
			}),
		}
	})

	return eventInstance
}

func (m *eventMetrics) RecordPublished(receivers int) {
	m.published.Inc()
	m.deliveries.Add(float64(receivers))
}

func (m *eventMetrics) RecordDropped(missed uint64) {
	m.dropped.Add(float64(missed))
}

func (m *eventMetrics) SetSubscribers(count int) {
	m.subscribers.Set(float64(count))
}

type webSocketMetrics struct {
	connected         prometheus.Counter
	disconnected      prometheus.Counter
	handshakeFailures prometheus.Counter
	framesSent        prometheus.Counter
}

var (
	wsOnce     sync.Once
	wsInstance metrics.WebSocketMetrics
)

// NewWebSocketMetrics returns the Prometheus-backed WebSocketMetrics.
func NewWebSocketMetrics() metrics.WebSocketMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopWebSocketMetrics()
	}

	wsOnce.Do(func() {
		reg := metrics.Registerer()

		wsInstance = &webSocketMetrics{
			connected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_websocket_clients_connected_total",
				Help: "WebSocket clients that completed the upgrade",
			}),
			disconnected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_websocket_clients_disconnected_total",
				Help: "WebSocket clients whose relay ended",
			}),
			handshakeFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_websocket_handshake_failures_total",
				Help: "Failed WebSocket upgrades",
			}),
			framesSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
				Name: "atlasfs_websocket_frames_sent_total",
				Help: "Events delivered to WebSocket clients",
			}),
		}
	})

	return wsInstance
}

func (m *webSocketMetrics) RecordClientConnected()    { m.connected.Inc() }
func (m *webSocketMetrics) RecordClientDisconnected() { m.disconnected.Inc() }
func (m *webSocketMetrics) RecordHandshakeFailure()   { m.handshakeFailures.Inc() }
func (m *webSocketMetrics) RecordFrameSent()          { m.framesSent.Inc() }
