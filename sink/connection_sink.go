package sink

import (
	"context"
	"sync"

	"team-chat/domain/event"
	"team-chat/errors"
)

// ConnectionSink buffers the outbound events of one connection.
// The transport write loop drains Events.
type ConnectionSink struct {
	Events chan event.DomainEvent

	overflowOnce sync.Once
	overflow     chan struct{}
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		Events:   make(chan event.DomainEvent, bufferSize),
		overflow: make(chan struct{}),
	}
}

// Consume is called by the registry fan-out.
// It never blocks: when the buffer is full the event is lost for this
// connection and Overflow is closed so the transport can drop the slow client.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.overflowOnce.Do(func() { close(s.overflow) })
		return errors.ErrSlowConsumer
	}
}

// Overflow is closed the first time an event could not be buffered.
func (s *ConnectionSink) Overflow() <-chan struct{} {
	return s.overflow
}
