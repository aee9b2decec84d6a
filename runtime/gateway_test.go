package runtime

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"team-chat/auth"
	"team-chat/domain"
	"team-chat/domain/event"
	"team-chat/errors"
	"team-chat/mocks"
	"team-chat/observability"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type censorStub struct{}

func (censorStub) Censor(content string) (string, []string) {
	if strings.Contains(content, "darn") {
		return strings.ReplaceAll(content, "darn", "****"), []string{"darn"}
	}
	return content, nil
}

type gatewayFixture struct {
	gateway     *Gateway
	registry    *Registry
	persistence chan event.DomainEvent
	monitor     *observability.Monitor
}

func newGatewayFixture(policy auth.Policy, queueSize int) gatewayFixture {
	log := slog.Default()
	registry := NewRegistry(log)
	persistence := make(chan event.DomainEvent, queueSize)
	monitor := observability.NewMonitor(log)
	gateway := NewGateway(log, registry, persistence, monitor, policy, 5000).
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) })
	return gatewayFixture{gateway: gateway, registry: registry, persistence: persistence, monitor: monitor}
}

func (f gatewayFixture) connect(t *testing.T, identity domain.Identity) (*domain.Session, *Sink) {
	t.Helper()
	session := domain.NewSession(uuid.NewString())
	sink := &Sink{}
	require.NoError(t, f.gateway.Connect(session, identity, sink))
	return session, sink
}

func messagesOf(events []event.DomainEvent) []domain.ChatMessage {
	var res []domain.ChatMessage
	for _, e := range events {
		if posted, ok := e.(event.MessagePosted); ok {
			res = append(res, posted.Message)
		}
	}
	return res
}

func TestGateway_Message_Reaches_Every_Member_And_Is_Persisted_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)

	// Given X and Y both joined team 42
	x, xSink := f.connect(t, domain.Identity{UserID: "u-x", Username: "x"})
	y, ySink := f.connect(t, domain.Identity{UserID: "u-y", Username: "y"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 42}))
	req.NoError(f.gateway.JoinTeam(ctx, y, auth.JoinTeamRequest{TeamID: 42}))

	// When X says hello to team 42
	msg, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: "hello"})
	req.NoError(err)

	// Then both X and Y receive it
	req.Equal([]domain.ChatMessage{msg}, messagesOf(xSink.Events()))
	req.Equal([]domain.ChatMessage{msg}, messagesOf(ySink.Events()))
	req.Equal("x", msg.Username)
	req.Equal("u-x", msg.UserID)
	req.Equal(domain.TeamID(42), msg.TeamID)
	req.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), msg.CreatedAt)
	req.NotEqual(uuid.Nil, msg.ID)

	// And exactly one persistence request was queued
	req.Len(f.persistence, 1)
	persisted := (<-f.persistence).(event.MessagePosted)
	req.Equal(domain.TeamID(42), persisted.Message.TeamID)
	req.Equal("hello", persisted.Message.Text)
	req.EqualValues(2, f.monitor.Snapshot().Deliveries)
}

func TestGateway_Join_Is_Acknowledged(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(auth.PolicyStrict, 10)
	x, sink := f.connect(t, domain.Identity{UserID: "u-x", Username: "x"})

	req.NoError(f.gateway.JoinTeam(context.Background(), x, auth.JoinTeamRequest{TeamID: 7, Username: "someone-else"}))

	req.Equal([]event.DomainEvent{event.TeamJoined{Team: 7, Username: "x"}}, sink.Events())
	req.Equal([]string{x.ID}, f.registry.Subscribers(domain.RoomKey(7)))
}

func TestGateway_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)

	// Given X in team 1 and Z in team 2
	x, _ := f.connect(t, domain.Identity{UserID: "u-x"})
	z, zSink := f.connect(t, domain.Identity{UserID: "u-z"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 1}))
	req.NoError(f.gateway.JoinTeam(ctx, z, auth.JoinTeamRequest{TeamID: 2}))

	// When X writes to team 1
	_, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 1, Text: "only for team 1"})
	req.NoError(err)

	// Then Z never sees it
	req.Empty(messagesOf(zSink.Events()))
}

func TestGateway_Sender_Outside_The_Room_Still_Broadcasts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)

	outsider, outsiderSink := f.connect(t, domain.Identity{UserID: "u-o"})
	member, memberSink := f.connect(t, domain.Identity{UserID: "u-m"})
	req.NoError(f.gateway.JoinTeam(ctx, member, auth.JoinTeamRequest{TeamID: 3}))

	_, err := f.gateway.SendMessage(ctx, outsider, auth.ChatMessageRequest{TeamID: 3, Text: "hi"})
	req.NoError(err)

	req.Len(messagesOf(memberSink.Events()), 1)
	req.Empty(outsiderSink.Events())
}

func TestGateway_Strict_Policy_Rejects_Anonymous_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)

	// Given an anonymous connection and a member of team 42
	anonymous, anonymousSink := f.connect(t, domain.AnonymousIdentity(""))
	member, memberSink := f.connect(t, domain.Identity{UserID: "u-m"})
	req.NoError(f.gateway.JoinTeam(ctx, member, auth.JoinTeamRequest{TeamID: 42}))

	// When the anonymous connection sends a message
	_, err := f.gateway.SendMessage(ctx, anonymous, auth.ChatMessageRequest{TeamID: 42, Text: "hello"})
	req.ErrorIs(err, errors.ErrUnauthenticated)
	f.gateway.Reject(ctx, anonymous, "chatMessage", err)

	// Then nothing is broadcast nor persisted
	req.Empty(memberSink.Events())
	req.Empty(f.persistence)
	// And the sender gets an error event
	events := anonymousSink.Events()
	req.Len(events, 1)
	rejected, ok := events[0].(event.EventRejected)
	req.True(ok)
	req.Equal("chatMessage", rejected.Event)
	req.Equal("unauthenticated", rejected.Code)
}

func TestGateway_Anonymous_Policy_Uses_Unknown(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyAnonymous, 10)

	anonymous, sink := f.connect(t, domain.AnonymousIdentity(""))
	req.NoError(f.gateway.JoinTeam(ctx, anonymous, auth.JoinTeamRequest{TeamID: 42}))

	msg, err := f.gateway.SendMessage(ctx, anonymous, auth.ChatMessageRequest{TeamID: 42, Text: "hello"})
	req.NoError(err)
	req.Equal(domain.UnknownUsername, msg.Username)
	req.Empty(msg.UserID)
	req.Len(messagesOf(sink.Events()), 1)
}

func TestGateway_Empty_Message_Is_Dropped_Silently(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)
	x, sink := f.connect(t, domain.Identity{UserID: "u-x"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 42}))

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: text})
		req.ErrorIs(err, errors.ErrEmptyMessage)
		f.gateway.Reject(ctx, x, "chatMessage", err)
	}

	// Only the join acknowledgement was received
	req.Len(sink.Events(), 1)
	req.Empty(f.persistence)
	req.Zero(f.monitor.Snapshot().RejectedEvents)
}

func TestGateway_Too_Long_Message_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)
	x, _ := f.connect(t, domain.Identity{UserID: "u-x"})

	_, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: strings.Repeat("é", 5001)})
	req.ErrorIs(err, errors.ErrMessageTooLong)

	_, err = f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: strings.Repeat("é", 5000)})
	req.NoError(err)
}

func TestGateway_Invalid_Team_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)
	x, _ := f.connect(t, domain.Identity{UserID: "u-x"})

	req.ErrorIs(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 0}), errors.ErrInvalidTeamID)
	_, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: -1, Text: "hi"})
	req.ErrorIs(err, errors.ErrInvalidTeamID)
	req.ErrorIs(f.gateway.LeaveTeam(x, 0), errors.ErrInvalidTeamID)
}

func TestGateway_Message_Is_Censored_Before_Broadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)
	f.gateway.WithCensor(censorStub{})
	x, sink := f.connect(t, domain.Identity{UserID: "u-x"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 42}))

	msg, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: "well darn"})
	req.NoError(err)

	req.Equal("well ****", msg.Text)
	req.Equal("well ****", messagesOf(sink.Events())[0].Text)
}

func TestGateway_Full_Persistence_Queue_Does_Not_Block(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 1)
	x, sink := f.connect(t, domain.Identity{UserID: "u-x"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 42}))

	// When more messages are sent than the queue can hold
	for i := 0; i < 3; i++ {
		_, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: "hi"})
		req.NoError(err)
	}

	// Then the live path delivered all of them
	req.Len(messagesOf(sink.Events()), 3)
	req.Len(f.persistence, 1)
	req.EqualValues(2, f.monitor.Snapshot().PersistenceDropped)
}

func TestGateway_Messages_Keep_Broadcast_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 100)
	x, sink := f.connect(t, domain.Identity{UserID: "u-x"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 42}))

	var sent []domain.ChatMessage
	for _, text := range []string{"one", "two", "three"} {
		msg, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 42, Text: text})
		req.NoError(err)
		sent = append(sent, msg)
	}

	req.Equal(sent, messagesOf(sink.Events()))
	for _, expected := range sent {
		req.Equal(expected, (<-f.persistence).(event.MessagePosted).Message)
	}
}

func TestGateway_Disconnect_Cleans_Up(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newGatewayFixture(auth.PolicyStrict, 10)

	// Given a connection in two rooms
	x, _ := f.connect(t, domain.Identity{UserID: "u-x"})
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 1}))
	req.NoError(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 2}))

	// When it disconnects twice
	f.gateway.Disconnect(x)
	f.gateway.Disconnect(x)

	// Then it is in no room and counted once
	req.Empty(f.registry.RoomsOf(x.ID))
	rooms, connections := f.registry.Size()
	req.Zero(rooms)
	req.Zero(connections)
	req.Zero(f.monitor.Snapshot().ActiveConnections)

	// And later events are refused
	_, err := f.gateway.SendMessage(ctx, x, auth.ChatMessageRequest{TeamID: 1, Text: "ghost"})
	req.ErrorIs(err, errors.ErrSessionNotActive)
	req.ErrorIs(f.gateway.JoinTeam(ctx, x, auth.JoinTeamRequest{TeamID: 1}), errors.ErrSessionNotActive)
}

func TestGateway_Events_Refused_Before_Connect(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(auth.PolicyStrict, 10)
	session := domain.NewSession("pending")

	_, err := f.gateway.SendMessage(context.Background(), session, auth.ChatMessageRequest{TeamID: 1, Text: "hi"})
	req.ErrorIs(err, errors.ErrSessionNotActive)
	req.ErrorIs(f.gateway.LeaveTeam(session, 1), errors.ErrSessionNotActive)
}

func TestGateway_Leave_Uses_Registry(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	log := slog.Default()
	gateway := NewGateway(log, registry, make(chan event.DomainEvent, 1), observability.NewMonitor(log), auth.PolicyStrict, 10)
	session := domain.NewSession("conn-1")

	registry.EXPECT().Attach("conn-1", gomock.Any())
	registry.EXPECT().Leave("conn-1", domain.RoomKey(5))
	registry.EXPECT().LeaveAll("conn-1")

	require.NoError(t, gateway.Connect(session, domain.Identity{UserID: "u"}, &Sink{}))
	require.NoError(t, gateway.LeaveTeam(session, 5))
	gateway.Disconnect(session)
}
