package workers

import (
	"context"
	"log/slog"
	"time"

	"team-chat/observability"
)

// StatsReporter logs a stats line every interval.
type StatsReporter struct {
	log      *slog.Logger
	interval time.Duration
	snapshot func() observability.Stats
}

func NewStatsReporter(log *slog.Logger, interval time.Duration, snapshot func() observability.Stats) *StatsReporter {
	return &StatsReporter{log: log, interval: interval, snapshot: snapshot}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.snapshot()
			w.log.Info("Chat stats",
				"active_connections", stats.ActiveConnections,
				"rooms", stats.Rooms,
				"messages_broadcast", stats.MessagesBroadcast,
				"dropped_deliveries", stats.DroppedDeliveries,
				"messages_persisted", stats.MessagesPersisted,
				"persistence_failures", stats.PersistenceFailures,
				"worker_restarts", stats.WorkerRestarts,
				"rss_bytes", stats.RSSBytes,
				"cpu_percent", stats.CPUPercent,
				"goroutines", stats.Goroutines,
			)
		}
	}
}
