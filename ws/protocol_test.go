package ws

import (
	"encoding/json"
	"testing"
	"time"

	"team-chat/domain"
	"team-chat/domain/event"
	"team-chat/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, raw string) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func TestDecodeChatMessage_Accepts_Every_TeamId_Form(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"number", `{"event":"chatMessage","args":["hello",42]}`},
		{"numeric string", `{"event":"chatMessage","args":["hello","42"]}`},
		{"room key", `{"event":"chatMessage","args":["hello","teamChat-42"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			msg, err := DecodeChatMessage(envelope(t, tt.raw))
			req.NoError(err)
			req.Equal(42, msg.TeamID)
			req.Equal("hello", msg.Text)
		})
	}
}

func TestDecodeChatMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"missing team", `{"event":"chatMessage","args":["hello"]}`, errors.ErrInvalidPayload},
		{"text not a string", `{"event":"chatMessage","args":[1,42]}`, errors.ErrInvalidPayload},
		{"bad team", `{"event":"chatMessage","args":["hello","abc"]}`, errors.ErrInvalidTeamID},
		{"negative team", `{"event":"chatMessage","args":["hello",-3]}`, errors.ErrInvalidTeamID},
		{"null team", `{"event":"chatMessage","args":["hello",null]}`, errors.ErrInvalidTeamID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeChatMessage(envelope(t, tt.raw))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeJoinTeam(t *testing.T) {
	req := require.New(t)

	join, err := DecodeJoinTeam(envelope(t, `{"event":"joinTeam","args":[{"teamId":"7","username":"alice"}]}`))
	req.NoError(err)
	req.Equal(7, join.TeamID)
	req.Equal("alice", join.Username)

	_, err = DecodeJoinTeam(envelope(t, `{"event":"joinTeam","args":[]}`))
	req.ErrorIs(err, errors.ErrInvalidPayload)

	_, err = DecodeJoinTeam(envelope(t, `{"event":"joinTeam","args":[{"teamId":"x"}]}`))
	req.ErrorIs(err, errors.ErrInvalidTeamID)
}

func TestDecodeLeaveTeam(t *testing.T) {
	req := require.New(t)
	team, err := DecodeLeaveTeam(envelope(t, `{"event":"leaveTeam","args":["teamChat-9"]}`))
	req.NoError(err)
	req.Equal(9, team)
}

func TestEncode_ChatMessage(t *testing.T) {
	req := require.New(t)
	message := domain.ChatMessage{
		ID:        uuid.New(),
		TeamID:    42,
		UserID:    "u-1",
		Username:  "alice",
		Text:      "hello",
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	data, ok, err := Encode(event.MessagePosted{Message: message})
	req.NoError(err)
	req.True(ok)

	var frame struct {
		Event string               `json:"event"`
		Args  []ChatMessagePayload `json:"args"`
	}
	req.NoError(json.Unmarshal(data, &frame))
	req.Equal(EventChatMessage, frame.Event)
	req.Len(frame.Args, 1)
	req.Equal("2026-03-04T05:06:07Z", frame.Args[0].CreatedAt)
	req.Equal("alice", frame.Args[0].Username)

	decoded, err := FromChatMessagePayload(frame.Args[0])
	req.NoError(err)
	req.Equal(message, decoded)
}

func TestEncode_Error_And_Ack(t *testing.T) {
	req := require.New(t)

	data, ok, err := Encode(event.EventRejected{Event: "chatMessage", Code: "unauthenticated", Reason: "unauthenticated"})
	req.NoError(err)
	req.True(ok)
	req.JSONEq(`{"event":"error","args":[{"event":"chatMessage","code":"unauthenticated","message":"unauthenticated"}]}`, string(data))

	data, ok, err = Encode(event.TeamJoined{Team: 3, Username: "bob"})
	req.NoError(err)
	req.True(ok)
	req.JSONEq(`{"event":"joinTeam","args":[{"teamId":3,"username":"bob"}]}`, string(data))
}

func TestClientFrames(t *testing.T) {
	req := require.New(t)

	data, err := ChatMessageFrame("hi", 42)
	req.NoError(err)
	msg, err := DecodeChatMessage(envelope(t, string(data)))
	req.NoError(err)
	req.Equal(42, msg.TeamID)

	data, err = JoinTeamFrame(42, "alice")
	req.NoError(err)
	join, err := DecodeJoinTeam(envelope(t, string(data)))
	req.NoError(err)
	req.Equal(42, join.TeamID)

	data, err = LeaveTeamFrame(42)
	req.NoError(err)
	team, err := DecodeLeaveTeam(envelope(t, string(data)))
	req.NoError(err)
	req.Equal(42, team)
}
