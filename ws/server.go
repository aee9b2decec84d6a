package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"team-chat/auth"
	"team-chat/domain"
	"team-chat/errors"
	"team-chat/observability"
	"team-chat/runtime"
	"team-chat/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type Options struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	PongTimeout          time.Duration
	MaxFrameSize         int64
	MessagesPerSecond    float64
	MessageBurst         int
	// AllowedOrigins lists the accepted Origin hosts, empty or "*" accepts any.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ConnectionBufferSize <= 0 {
		o.ConnectionBufferSize = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = 64 * 1024
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 10
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 20
	}
	return o
}

// Server upgrades authenticated HTTP requests into chat connections.
type Server struct {
	log           *slog.Logger
	gateway       *runtime.Gateway
	authenticator auth.Authenticator
	monitor       *observability.Monitor
	options       Options
	upgrader      websocket.Upgrader

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewServer(log *slog.Logger, gateway *runtime.Gateway, authenticator auth.Authenticator,
	monitor *observability.Monitor, options Options) *Server {
	s := &Server{
		log:           log,
		gateway:       gateway,
		authenticator: authenticator,
		monitor:       monitor,
		options:       options.withDefaults(),
		done:          make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticator.Authenticate(r)
	if err != nil {
		s.monitor.HandshakeRejected()
		s.log.Warn("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), errors.MapToHTTPStatus(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client.
		s.monitor.HandshakeRejected()
		s.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := domain.NewSession(uuid.NewString())
	connectionSink := sink.NewConnectionSink(s.options.ConnectionBufferSize)
	if err := s.gateway.Connect(session, identity, connectionSink); err != nil {
		s.log.Error("Connection not activated", "connection_id", session.ID, "error", err)
		_ = conn.Close()
		return
	}

	c := &connection{
		server:  s,
		log:     s.log.With("connection_id", session.ID),
		conn:    conn,
		session: session,
		sink:    connectionSink,
		limiter: rate.NewLimiter(rate.Limit(s.options.MessagesPerSecond), s.options.MessageBurst),
	}
	s.wg.Add(1)
	defer s.wg.Done()
	c.serve()
}

// Shutdown asks every open connection to close with a going away frame and
// waits for them, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.options.AllowedOrigins) == 0 || lo.Contains(s.options.AllowedOrigins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return lo.ContainsBy(s.options.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin)
	})
}

type connection struct {
	server  *Server
	log     *slog.Logger
	conn    *websocket.Conn
	session *domain.Session
	sink    *sink.ConnectionSink
	limiter *rate.Limiter
}

// serve runs the write loop in the background and reads until the peer leaves.
// Whichever loop stops first tears the other one down.
func (c *connection) serve() {
	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump(ctx)
	cancel()
	<-writerDone
	c.server.gateway.Disconnect(c.session)
}

func (c *connection) readPump(ctx context.Context) {
	defer func() {
		_ = c.conn.Close()
	}()

	options := c.server.options
	c.conn.SetReadLimit(options.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(options.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(options.PongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Connection lost", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(options.PongTimeout))
		if messageType != websocket.TextMessage {
			c.server.gateway.Reject(ctx, c.session, "", fmt.Errorf("%w: binary frame", errors.ErrInvalidPayload))
			continue
		}
		c.handle(ctx, data)
	}
}

func (c *connection) handle(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.server.gateway.Reject(ctx, c.session, "", fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err))
		return
	}
	if !c.limiter.Allow() {
		c.server.gateway.Reject(ctx, c.session, env.Event, errors.ErrRateLimited)
		return
	}

	var err error
	switch env.Event {
	case EventJoinTeam:
		var req auth.JoinTeamRequest
		if req, err = DecodeJoinTeam(env); err == nil {
			err = c.server.gateway.JoinTeam(ctx, c.session, req)
		}
	case EventChatMessage:
		var req auth.ChatMessageRequest
		if req, err = DecodeChatMessage(env); err == nil {
			_, err = c.server.gateway.SendMessage(ctx, c.session, req)
		}
	case EventLeaveTeam:
		var teamID int
		if teamID, err = DecodeLeaveTeam(env); err == nil {
			err = c.server.gateway.LeaveTeam(c.session, teamID)
		}
	default:
		err = fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Event)
	}
	if err != nil {
		c.server.gateway.Reject(ctx, c.session, env.Event, err)
	}
}

func (c *connection) writePump(ctx context.Context) {
	options := c.server.options
	ticker := time.NewTicker(options.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.server.done:
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-c.sink.Overflow():
			c.log.Warn("Slow consumer disconnected", "buffer_size", cap(c.sink.Events))
			c.closeWith(websocket.CloseTryAgainLater, errors.ErrSlowConsumer.Error())
			return
		case evt := <-c.sink.Events:
			data, ok, err := Encode(evt)
			if err != nil {
				c.log.Error("Event not encoded", "event", fmt.Sprintf("%T", evt), "error", err)
				continue
			}
			if !ok {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (c *connection) closeWith(code int, reason string) {
	deadline := time.Now().Add(c.server.options.WriteTimeout)
	if err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		c.log.Debug("Close frame not sent", "error", err)
	}
}
