// Package ws exposes the Chat Gateway over websocket text frames.
//
// Every frame is a JSON envelope {"event": <name>, "args": [...]}.
package ws

import (
	"bytes"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"team-chat/auth"
	"team-chat/domain"
	"team-chat/domain/event"
	"team-chat/errors"

	"github.com/google/uuid"
)

const (
	EventJoinTeam    = "joinTeam"
	EventChatMessage = "chatMessage"
	EventLeaveTeam   = "leaveTeam"
	EventError       = "error"
)

// Envelope is the inbound frame, args are decoded per event.
type Envelope struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

type outbound struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// TeamRef accepts 42, "42" and "teamChat-42".
type TeamRef int

func (t *TeamRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return errors.ErrInvalidTeamID
		}
	} else {
		raw = string(data)
	}
	id, err := domain.ParseTeamID(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidTeamID, err)
	}
	*t = TeamRef(id)
	return nil
}

type JoinTeamPayload struct {
	TeamID   TeamRef `json:"teamId"`
	Username string  `json:"username"`
}

type ChatMessagePayload struct {
	ID        string `json:"id"`
	TeamID    int    `json:"teamId"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type TeamJoinedPayload struct {
	TeamID   int    `json:"teamId"`
	Username string `json:"username"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func arg(env Envelope, index int, target any) error {
	if index >= len(env.Args) {
		return fmt.Errorf("%w: %s expects argument %d", errors.ErrInvalidPayload, env.Event, index)
	}
	if err := json.Unmarshal(env.Args[index], target); err != nil {
		if goerrors.Is(err, errors.ErrInvalidTeamID) {
			return err
		}
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	return nil
}

// DecodeJoinTeam reads joinTeam({teamId, username}).
func DecodeJoinTeam(env Envelope) (auth.JoinTeamRequest, error) {
	var payload JoinTeamPayload
	if err := arg(env, 0, &payload); err != nil {
		return auth.JoinTeamRequest{}, err
	}
	return auth.JoinTeamRequest{TeamID: int(payload.TeamID), Username: payload.Username}, nil
}

// DecodeChatMessage reads chatMessage(text, teamId).
func DecodeChatMessage(env Envelope) (auth.ChatMessageRequest, error) {
	var text string
	if err := arg(env, 0, &text); err != nil {
		return auth.ChatMessageRequest{}, err
	}
	var team TeamRef
	if err := arg(env, 1, &team); err != nil {
		return auth.ChatMessageRequest{}, err
	}
	return auth.ChatMessageRequest{TeamID: int(team), Text: text}, nil
}

// DecodeLeaveTeam reads leaveTeam(teamId).
func DecodeLeaveTeam(env Envelope) (int, error) {
	var team TeamRef
	if err := arg(env, 0, &team); err != nil {
		return 0, err
	}
	return int(team), nil
}

// Encode renders an outbound domain event, ok is false for events that
// have no wire representation.
func Encode(evt event.DomainEvent) ([]byte, bool, error) {
	var frame outbound
	switch e := evt.(type) {
	case event.MessagePosted:
		frame = outbound{Event: EventChatMessage, Args: []any{ToChatMessagePayload(e.Message)}}
	case event.TeamJoined:
		frame = outbound{Event: EventJoinTeam, Args: []any{TeamJoinedPayload{TeamID: int(e.Team), Username: e.Username}}}
	case event.EventRejected:
		frame = outbound{Event: EventError, Args: []any{ErrorPayload{Event: e.Event, Code: e.Code, Message: e.Reason}}}
	default:
		return nil, false, nil
	}
	data, err := json.Marshal(frame)
	return data, true, err
}

func ToChatMessagePayload(m domain.ChatMessage) ChatMessagePayload {
	return ChatMessagePayload{
		ID:        m.ID.String(),
		TeamID:    int(m.TeamID),
		UserID:    m.UserID,
		Username:  m.Username,
		Text:      m.Text,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ChatMessageFrame builds the client side chatMessage(text, teamId) frame.
func ChatMessageFrame(text string, teamID int) ([]byte, error) {
	return json.Marshal(outbound{Event: EventChatMessage, Args: []any{text, teamID}})
}

// JoinTeamFrame builds the client side joinTeam({teamId, username}) frame.
func JoinTeamFrame(teamID int, username string) ([]byte, error) {
	return json.Marshal(outbound{Event: EventJoinTeam, Args: []any{map[string]any{"teamId": teamID, "username": username}}})
}

// LeaveTeamFrame builds the client side leaveTeam(teamId) frame.
func LeaveTeamFrame(teamID int) ([]byte, error) {
	return json.Marshal(outbound{Event: EventLeaveTeam, Args: []any{teamID}})
}

// FromChatMessagePayload is the inverse of ToChatMessagePayload, used by clients.
func FromChatMessagePayload(p ChatMessagePayload) (domain.ChatMessage, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: message id: %w", errors.ErrInvalidPayload, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, p.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: createdAt: %w", errors.ErrInvalidPayload, err)
	}
	return domain.ChatMessage{
		ID:        id,
		TeamID:    domain.TeamID(p.TeamID),
		UserID:    p.UserID,
		Username:  p.Username,
		Text:      p.Text,
		CreatedAt: createdAt,
	}, nil
}
