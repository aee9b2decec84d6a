package sink

import (
	"context"
	"fmt"
	"log/slog"

	"team-chat/domain"
	"team-chat/domain/event"
	"team-chat/repositories"
)

// DiskSink appends posted messages to the message store.
type DiskSink struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
}

func NewDiskSink(repository repositories.IMessageRepository, log *slog.Logger) DiskSink {
	return DiskSink{repository: repository, log: log}
}

func (d DiskSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		return d.repository.StoreMessage(ToDiskMessage(evt.Message))
	default:
		d.log.Debug(fmt.Sprintf("Not implemented event : %T", evt))
		return nil
	}
}

func ToDiskMessage(message domain.ChatMessage) repositories.DiskMessage {
	return repositories.DiskMessage{
		ID:        message.ID,
		TeamID:    int(message.TeamID),
		UserID:    message.UserID,
		Username:  message.Username,
		Text:      message.Text,
		CreatedAt: message.CreatedAt,
	}
}

func FromDiskMessage(message repositories.DiskMessage) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        message.ID,
		TeamID:    domain.TeamID(message.TeamID),
		UserID:    message.UserID,
		Username:  message.Username,
		Text:      message.Text,
		CreatedAt: message.CreatedAt,
	}
}
