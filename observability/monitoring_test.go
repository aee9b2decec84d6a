package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor_Snapshot(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(slog.Default())

	// Given some traffic
	monitor.ConnectionOpened()
	monitor.ConnectionOpened()
	monitor.ConnectionClosed()
	monitor.MessageBroadcast(3, 1)
	monitor.MessageBroadcast(2, 0)
	monitor.MessagePersisted()
	monitor.PersistenceFailed()
	monitor.PersistenceDropped()
	monitor.EventRejected()
	monitor.HandshakeRejected()
	monitor.WorkerRestarted()

	// When taking a snapshot
	stats := monitor.Snapshot()

	// Then counters are consistent
	req.EqualValues(1, stats.ActiveConnections)
	req.EqualValues(2, stats.TotalConnections)
	req.EqualValues(2, stats.MessagesBroadcast)
	req.EqualValues(5, stats.Deliveries)
	req.EqualValues(1, stats.DroppedDeliveries)
	req.EqualValues(1, stats.MessagesPersisted)
	req.EqualValues(1, stats.PersistenceFailures)
	req.EqualValues(1, stats.PersistenceDropped)
	req.EqualValues(1, stats.RejectedEvents)
	req.EqualValues(1, stats.RejectedHandshakes)
	req.EqualValues(1, stats.WorkerRestarts)
	req.Positive(stats.Goroutines)
}
