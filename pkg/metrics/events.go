package metrics

// EventMetrics provides observability for the event bus.
type EventMetrics interface {
	// RecordPublished counts a published event and how many subscribers it
	// was queued for.
	RecordPublished(receivers int)

	// RecordDropped counts events a slow subscriber lost to overflow.
	RecordDropped(missed uint64)

	// SetSubscribers updates the current subscriber count.
	SetSubscribers(count int)
}

// NewNoopEventMetrics returns an EventMetrics that records nothing.
func NewNoopEventMetrics() EventMetrics {
	return noopEventMetrics{}
}

type noopEventMetrics struct{}

func (noopEventMetrics) RecordPublished(int)  {}
func (noopEventMetrics) RecordDropped(uint64) {}
func (noopEventMetrics) SetSubscribers(int)   {}

// WebSocketMetrics provides observability for the WebSocket fan-out.
type WebSocketMetrics interface {
	// RecordClientConnected counts a completed upgrade.
	RecordClientConnected()

	// RecordClientDisconnected counts a client whose relay loop ended.
	RecordClientDisconnected()

	// RecordHandshakeFailure counts a failed upgrade.
	RecordHandshakeFailure()

	// RecordFrameSent counts an event delivered as a text frame.
	RecordFrameSent()
}

// NewNoopWebSocketMetrics returns a WebSocketMetrics that records nothing.
func NewNoopWebSocketMetrics() WebSocketMetrics {
	return noopWebSocketMetrics{}
}

type noopWebSocketMetrics struct{}

func (noopWebSocketMetrics) RecordClientConnected()    {}
func (noopWebSocketMetrics) RecordClientDisconnected() {}
func (noopWebSocketMetrics) RecordHandshakeFailure()   {}
func (noopWebSocketMetrics) RecordFrameSent()          {}
