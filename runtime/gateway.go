// Package runtime handles room membership, event propagation and the
// lifecycle of chat connections. Transports call the Gateway, never the Registry.
package runtime

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"team-chat/auth"
	"team-chat/contract"
	"team-chat/domain"
	"team-chat/domain/event"
	"team-chat/errors"
	"team-chat/observability"

	"github.com/google/uuid"
)

// Censor rewrites forbidden words before a message is broadcast.
type Censor interface {
	Censor(content string) (string, []string)
}

// Gateway turns inbound protocol events into registry operations.
//
// A chatMessage is broadcast first and queued for persistence afterwards,
// the persistence queue never slows down the live path.
type Gateway struct {
	log              *slog.Logger
	registry         contract.IRegistry
	persistence      chan<- event.DomainEvent
	monitor          *observability.Monitor
	censor           Censor
	policy           auth.Policy
	maxMessageLength int
	now              func() time.Time
	newID            func() uuid.UUID
}

func NewGateway(log *slog.Logger, registry contract.IRegistry, persistence chan<- event.DomainEvent,
	monitor *observability.Monitor, policy auth.Policy, maxMessageLength int) *Gateway {
	return &Gateway{
		log:              log,
		registry:         registry,
		persistence:      persistence,
		monitor:          monitor,
		policy:           policy,
		maxMessageLength: maxMessageLength,
		now:              time.Now,
		newID:            uuid.New,
	}
}

func (g *Gateway) WithCensor(censor Censor) *Gateway {
	g.censor = censor
	return g
}

func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

func (g *Gateway) WithIDs(newID func() uuid.UUID) *Gateway {
	g.newID = newID
	return g
}

// Connect activates the session and attaches its outbound sink.
func (g *Gateway) Connect(session *domain.Session, identity domain.Identity, sink contract.EventSink) error {
	if err := session.Activate(identity); err != nil {
		return err
	}
	g.registry.Attach(session.ID, sink)
	g.monitor.ConnectionOpened()
	g.log.Info("Connection opened",
		"connection_id", session.ID,
		"user_id", identity.UserID,
		"username", identity.DisplayName(),
		"anonymous", identity.Anonymous)
	return nil
}

// JoinTeam subscribes the connection to the team room and acknowledges it.
// Joining a room twice is harmless.
func (g *Gateway) JoinTeam(ctx context.Context, session *domain.Session, req auth.JoinTeamRequest) error {
	identity, ok := session.Identity()
	if !ok {
		return errors.ErrSessionNotActive
	}
	if err := auth.ValidateJoinTeam(req); err != nil {
		return err
	}
	team := domain.TeamID(req.TeamID)
	g.registry.Join(session.ID, domain.RoomKey(team))

	// The identity resolved at connect time wins over the declared username.
	username := identity.DisplayName()
	g.log.Debug("Team joined", "connection_id", session.ID, "room", domain.RoomKey(team), "username", username)
	return g.registry.Deliver(ctx, session.ID, event.TeamJoined{Team: team, Username: username})
}

func (g *Gateway) LeaveTeam(session *domain.Session, teamID int) error {
	if session.State() != domain.Active {
		return errors.ErrSessionNotActive
	}
	if teamID <= 0 {
		return errors.ErrInvalidTeamID
	}
	g.registry.Leave(session.ID, domain.RoomKey(domain.TeamID(teamID)))
	return nil
}

// SendMessage stamps, broadcasts and queues a message for persistence.
// The sender does not need to be a member of the room.
func (g *Gateway) SendMessage(ctx context.Context, session *domain.Session, req auth.ChatMessageRequest) (domain.ChatMessage, error) {
	identity, ok := session.Identity()
	if !ok {
		return domain.ChatMessage{}, errors.ErrSessionNotActive
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := auth.ValidateChatMessage(req, g.maxMessageLength); err != nil {
		return domain.ChatMessage{}, err
	}
	if g.policy == auth.PolicyStrict && identity.Anonymous {
		return domain.ChatMessage{}, errors.ErrUnauthenticated
	}

	text := req.Text
	if g.censor != nil {
		censored, found := g.censor.Censor(text)
		if len(found) > 0 {
			g.log.Debug("Message censored", "connection_id", session.ID, "words", found)
		}
		text = censored
	}

	team := domain.TeamID(req.TeamID)
	evt, delivered, failed := g.registry.Broadcast(ctx, domain.RoomKey(team), func() event.DomainEvent {
		return event.MessagePosted{Message: domain.ChatMessage{
			ID:        g.newID(),
			TeamID:    team,
			UserID:    identity.UserID,
			Username:  identity.DisplayName(),
			Text:      text,
			CreatedAt: g.now().UTC(),
		}}
	})
	g.monitor.MessageBroadcast(delivered, failed)

	posted, ok := evt.(event.MessagePosted)
	if !ok {
		return domain.ChatMessage{}, fmt.Errorf("unexpected event %T", evt)
	}
	g.enqueue(posted)
	return posted.Message, nil
}

func (g *Gateway) enqueue(evt event.MessagePosted) {
	select {
	case g.persistence <- evt:
	default:
		g.monitor.PersistenceDropped()
		g.log.Error("Persistence queue full, message kept out of history",
			"room", evt.RoomID(),
			"message_id", evt.Message.ID)
	}
}

// Reject reports a refused inbound event to its sender, the connection stays open.
// Empty messages are dropped without any answer.
func (g *Gateway) Reject(ctx context.Context, session *domain.Session, eventName string, cause error) {
	if goerrors.Is(cause, errors.ErrEmptyMessage) {
		return
	}
	g.monitor.EventRejected()
	g.log.Warn("Event rejected", "connection_id", session.ID, "event", eventName, "error", cause)
	rejected := event.EventRejected{Event: eventName, Code: errors.Code(cause), Reason: cause.Error()}
	if err := g.registry.Deliver(ctx, session.ID, rejected); err != nil {
		g.log.Debug("Rejection not delivered", "connection_id", session.ID, "error", err)
	}
}

// Disconnect removes the connection from every room. Calling it twice is harmless.
func (g *Gateway) Disconnect(session *domain.Session) {
	previous := session.Close()
	if previous == domain.Disconnected {
		return
	}
	g.registry.LeaveAll(session.ID)
	if previous == domain.Active {
		g.monitor.ConnectionClosed()
		g.log.Info("Connection closed", "connection_id", session.ID)
	}
}
