package metrics

import "time"

// CommandMetrics provides observability for the command port.
//
// If not provided to the command adapter, a no-op implementation is used.
type CommandMetrics interface {
	// RecordCommand records a processed request.
	//
	// Parameters:
	//   - opcode: Opcode name (e.g., "CREATE", "DELETE", "OPCODE(42)")
	//   - outcome: Outcome kind (e.g., "success", "failure")
	//   - duration: Time spent in the processor
	RecordCommand(opcode, outcome string, duration time.Duration)

	// RecordDecodeError counts a request that could not be decoded.
	RecordDecodeError(codec string)

	// RecordBytes records bytes read from or written to clients.
	//
	// Parameters:
	//   - direction: "in" or "out"
	//   - bytes: Number of bytes transferred
	RecordBytes(direction string, bytes int)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections cut at shutdown timeout.
	RecordConnectionForceClosed()

	// RecordRateLimited counts requests rejected by the rate limiter.
	RecordRateLimited()
}

// NewNoopCommandMetrics returns a CommandMetrics that records nothing.
func NewNoopCommandMetrics() CommandMetrics {
	return noopCommandMetrics{}
}

type noopCommandMetrics struct{}

func (noopCommandMetrics) RecordCommand(string, string, time.Duration) {}
func (noopCommandMetrics) RecordDecodeError(string)                    {}
func (noopCommandMetrics) RecordBytes(string, int)                     {}
func (noopCommandMetrics) SetActiveConnections(int32)                  {}
func (noopCommandMetrics) RecordConnectionAccepted()                   {}
func (noopCommandMetrics) RecordConnectionClosed()                     {}
func (noopCommandMetrics) RecordConnectionForceClosed()                {}
func (noopCommandMetrics) RecordRateLimited()                          {}
