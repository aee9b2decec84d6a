package workers

import (
	"context"
	"fmt"
	"log/slog"

	"team-chat/contract"
	"team-chat/domain/event"
	"team-chat/observability"
)

// EventFanout drains the persistence queue into its sinks, in order.
//
// It runs after the live broadcast already happened, so a failing sink only
// costs history: the failure is logged and counted, never retried.
// When a sink fails the remaining sinks are skipped for that event.
//
// Several EventFanout workers may share one queue.
type EventFanout struct {
	log     *slog.Logger
	events  <-chan event.DomainEvent
	monitor *observability.Monitor
	sinks   []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, monitor *observability.Monitor) *EventFanout {
	return &EventFanout{log: log, events: events, monitor: monitor}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

// Run returns nil once the queue is closed, or after draining what is
// already buffered when ctx is canceled.
// Sinks receive a context that is never canceled: an accepted message is
// written even while shutting down.
func (w *EventFanout) Run(ctx context.Context) error {
	sinkCtx := context.WithoutCancel(ctx)
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(sinkCtx, evt)
		case <-ctx.Done():
			w.drain(sinkCtx)
			w.log.Debug("Context done, persistence queue drained")
			return nil
		}
	}
}

func (w *EventFanout) drain(ctx context.Context) {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return
			}
			w.Fanout(ctx, evt)
		default:
			return
		}
	}
}

// Fanout One sink after the other for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Error("Message not persisted",
				"sink", fmt.Sprintf("%T", sink),
				"room", evt.RoomID(),
				"error", err)
			w.monitor.PersistenceFailed()
			return
		}
	}
	w.monitor.MessagePersisted()
}
