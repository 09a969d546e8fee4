package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/marmos91/atlasfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordIntoRegistry(t *testing.T) {
	metrics.InitRegistry()
	reg := metrics.GetRegistry()
	require.NotNil(t, reg)

	cmd := NewCommandMetrics()
	assert.Same(t, cmd, NewCommandMetrics())

	cmd.RecordCommand("CREATE", "success", 3*time.Millisecond)
	cmd.RecordCommand("CREATE", "success", time.Millisecond)
	cmd.RecordConnectionAccepted()
	cmd.SetActiveConnections(1)

	ev := NewEventMetrics()
	ev.RecordPublished(2)
	ev.RecordDropped(5)
	ev.SetSubscribers(2)

	ws := NewWebSocketMetrics()
	ws.RecordClientConnected()

	expected := `
# HELP atlasfs_commands_total Total number of processed commands by opcode and outcome
# TYPE atlasfs_commands_total counter
atlasfs_commands_total{opcode="CREATE",outcome="success"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "atlasfs_commands_total"))

	expected = `
# HELP atlasfs_events_dropped_total Events lost by subscribers that fell behind
# TYPE atlasfs_events_dropped_total counter
atlasfs_events_dropped_total 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "atlasfs_events_dropped_total"))

	count, err := testutil.GatherAndCount(reg, "atlasfs_websocket_clients_connected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Runtime collectors are attached by InitRegistry.
	count, err = testutil.GatherAndCount(reg, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
