package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats aggregates the chat counters exposed on /debug/stats
type Stats struct {
	ActiveConnections   int64   `json:"active_connections"`
	TotalConnections    uint64  `json:"total_connections"`
	RejectedHandshakes  uint64  `json:"rejected_handshakes"`
	MessagesBroadcast   uint64  `json:"messages_broadcast"`
	Deliveries          uint64  `json:"deliveries"`
	DroppedDeliveries   uint64  `json:"dropped_deliveries"`
	MessagesPersisted   uint64  `json:"messages_persisted"`
	PersistenceFailures uint64  `json:"persistence_failures"`
	PersistenceDropped  uint64  `json:"persistence_dropped"`
	RejectedEvents      uint64  `json:"rejected_events"`
	WorkerRestarts      uint64  `json:"worker_restarts"`
	Rooms               int     `json:"rooms"`
	AttachedConnections int     `json:"attached_connections"`
	Goroutines          int     `json:"goroutines"`
	AllocMemMb          uint64  `json:"alloc_mem_mb"`
	RSSBytes            uint64  `json:"rss_bytes"`
	CPUPercent          float64 `json:"cpu_percent"`
	UptimeSeconds       int64   `json:"uptime_seconds"`
}

// Monitor holds atomic counters updated on the hot path.
type Monitor struct {
	log       *slog.Logger
	startedAt time.Time
	process   *process.Process

	activeConnections   int64
	totalConnections    uint64
	rejectedHandshakes  uint64
	messagesBroadcast   uint64
	deliveries          uint64
	droppedDeliveries   uint64
	messagesPersisted   uint64
	persistenceFailures uint64
	persistenceDropped  uint64
	rejectedEvents      uint64
	workerRestarts      uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		p = nil
	}
	return &Monitor{log: log, startedAt: time.Now(), process: p}
}

func (m *Monitor) ConnectionOpened() {
	atomic.AddInt64(&m.activeConnections, 1)
	atomic.AddUint64(&m.totalConnections, 1)
}

func (m *Monitor) ConnectionClosed() {
	atomic.AddInt64(&m.activeConnections, -1)
}

func (m *Monitor) HandshakeRejected() {
	atomic.AddUint64(&m.rejectedHandshakes, 1)
}

// MessageBroadcast records one fan-out and how many subscribers it missed.
func (m *Monitor) MessageBroadcast(delivered, failed int) {
	atomic.AddUint64(&m.messagesBroadcast, 1)
	atomic.AddUint64(&m.deliveries, uint64(delivered))
	atomic.AddUint64(&m.droppedDeliveries, uint64(failed))
}

func (m *Monitor) MessagePersisted() {
	atomic.AddUint64(&m.messagesPersisted, 1)
}

func (m *Monitor) PersistenceFailed() {
	atomic.AddUint64(&m.persistenceFailures, 1)
}

func (m *Monitor) PersistenceDropped() {
	atomic.AddUint64(&m.persistenceDropped, 1)
}

func (m *Monitor) EventRejected() {
	atomic.AddUint64(&m.rejectedEvents, 1)
}

func (m *Monitor) WorkerRestarted() {
	atomic.AddUint64(&m.workerRestarts, 1)
}

// Snapshot reads the counters and samples the process.
func (m *Monitor) Snapshot() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := Stats{
		ActiveConnections:   atomic.LoadInt64(&m.activeConnections),
		TotalConnections:    atomic.LoadUint64(&m.totalConnections),
		RejectedHandshakes:  atomic.LoadUint64(&m.rejectedHandshakes),
		MessagesBroadcast:   atomic.LoadUint64(&m.messagesBroadcast),
		Deliveries:          atomic.LoadUint64(&m.deliveries),
		DroppedDeliveries:   atomic.LoadUint64(&m.droppedDeliveries),
		MessagesPersisted:   atomic.LoadUint64(&m.messagesPersisted),
		PersistenceFailures: atomic.LoadUint64(&m.persistenceFailures),
		PersistenceDropped:  atomic.LoadUint64(&m.persistenceDropped),
		RejectedEvents:      atomic.LoadUint64(&m.rejectedEvents),
		WorkerRestarts:      atomic.LoadUint64(&m.workerRestarts),
		Goroutines:          runtime.NumGoroutine(),
		AllocMemMb:          mem.Alloc / 1024 / 1024,
		UptimeSeconds:       int64(time.Since(m.startedAt).Seconds()),
	}

	if m.process != nil {
		if memInfo, err := m.process.MemoryInfo(); err == nil {
			stats.RSSBytes = memInfo.RSS
		}
		if cpu, err := m.process.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
	}
	return stats
}
