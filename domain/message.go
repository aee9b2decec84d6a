// Package domain contains core concepts of the team chat.
// This file defines chat messages as they are broadcast and stored.
// Messages are immutable once the gateway has stamped them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage represents one message sent to a team room.
type ChatMessage struct {
	ID        uuid.UUID
	TeamID    TeamID
	UserID    string // empty for anonymous senders
	Username  string
	Text      string
	CreatedAt time.Time
}

func (m ChatMessage) Room() RoomID {
	return RoomKey(m.TeamID)
}
