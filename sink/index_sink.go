package sink

import (
	"context"
	"log/slog"

	"team-chat/domain/event"
	"team-chat/repositories"
)

// IndexSink feeds the search index. It runs after DiskSink in the fan-out.
type IndexSink struct {
	index repositories.IMessageIndex
	log   *slog.Logger
}

func NewIndexSink(index repositories.IMessageIndex, log *slog.Logger) IndexSink {
	return IndexSink{index: index, log: log}
}

func (s IndexSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessagePosted)
	if !ok {
		return nil
	}
	return s.index.Index(ToDiskMessage(evt.Message))
}
