package event

import (
	"team-chat/domain"
)

// DomainEvent travels from the gateway to connection sinks and persistence sinks.
type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is emitted once per accepted chatMessage.
type MessagePosted struct {
	Message domain.ChatMessage
}

func (m MessagePosted) RoomID() domain.RoomID {
	return m.Message.Room()
}

// TeamJoined acknowledges a join to the connection that issued it.
type TeamJoined struct {
	Team     domain.TeamID
	Username string
}

func (t TeamJoined) RoomID() domain.RoomID {
	return domain.RoomKey(t.Team)
}

// EventRejected reports an inbound event the gateway refused.
// The connection stays open.
type EventRejected struct {
	Event  string
	Code   string
	Reason string
}

func (EventRejected) RoomID() domain.RoomID {
	return ""
}
