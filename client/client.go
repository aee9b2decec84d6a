// Package client is the Go side of a chat session: it speaks the websocket
// protocol, reads history over REST and merges both into a Timeline.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"team-chat/domain"
	"team-chat/httpapi"
	"team-chat/projection"
	"team-chat/ws"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Options struct {
	// ServerURL is the http(s) base address of the chat server.
	ServerURL string
	// Token is sent as a bearer token, may be empty on anonymous servers.
	Token string
	// Username is only used by anonymous servers.
	Username     string
	BufferSize   int
	WriteTimeout time.Duration
}

// REST reads history and search results. It needs no websocket connection,
// only the bearer token when the server requires one.
type REST struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

func NewREST(serverURL, token string) (*REST, error) {
	baseURL, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	return &REST{baseURL: baseURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

// Client holds one websocket connection. Received messages are published on
// Messages, which is closed when the connection ends. Server side refusals go to Errors.
type Client struct {
	*REST
	log     *slog.Logger
	options Options
	conn    *websocket.Conn

	writeMu  sync.Mutex
	messages chan domain.ChatMessage
	joined   chan ws.TeamJoinedPayload
	errors   chan ws.ErrorPayload
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	readErr  error
}

// Dial opens the websocket connection and starts reading in the background.
func Dial(ctx context.Context, log *slog.Logger, options Options) (*Client, error) {
	if options.BufferSize <= 0 {
		options.BufferSize = 64
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = 10 * time.Second
	}
	rest, err := NewREST(options.ServerURL, options.Token)
	if err != nil {
		return nil, err
	}

	wsURL := *rest.baseURL
	wsURL.Scheme = lo.Ternary(rest.baseURL.Scheme == "https", "wss", "ws")
	wsURL.Path = rest.baseURL.Path + "/ws"
	if options.Username != "" {
		wsURL.RawQuery = url.Values{"username": {options.Username}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), authHeader(options.Token))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake refused with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("could not connect to %s: %w", wsURL.String(), err)
	}

	c := &Client{
		REST:     rest,
		log:      log,
		options:  options,
		conn:     conn,
		messages: make(chan domain.ChatMessage, options.BufferSize),
		joined:   make(chan ws.TeamJoinedPayload, options.BufferSize),
		errors:   make(chan ws.ErrorPayload, options.BufferSize),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Messages() <-chan domain.ChatMessage {
	return c.messages
}

func (c *Client) Joined() <-chan ws.TeamJoinedPayload {
	return c.joined
}

func (c *Client) Errors() <-chan ws.ErrorPayload {
	return c.errors
}

// Done is closed once the connection is gone, Err tells why.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

func (c *Client) JoinTeam(teamID int) error {
	data, err := ws.JoinTeamFrame(teamID, c.options.Username)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Client) LeaveTeam(teamID int) error {
	data, err := ws.LeaveTeamFrame(teamID)
	if err != nil {
		return err
	}
	return c.write(data)
}

// Send drops blank text before it reaches the wire.
func (c *Client) Send(teamID int, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	data, err := ws.ChatMessageFrame(text, teamID)
	if err != nil {
		return err
	}
	return c.write(data)
}

// History reads one newest-first page. before is the cursor returned by the previous page.
func (c *REST) History(ctx context.Context, teamID, limit int, before *string) ([]domain.ChatMessage, *string, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before != nil {
		query.Set("before", *before)
	}
	var page []ws.ChatMessagePayload
	header, err := c.get(ctx, fmt.Sprintf("/api/teams/%d/messages", teamID), query, &page)
	if err != nil {
		return nil, nil, err
	}
	messages, err := fromPayloads(page)
	if err != nil {
		return nil, nil, err
	}
	var next *string
	if cursor := header.Get(httpapi.NextCursorHeader); cursor != "" {
		next = &cursor
	}
	return messages, next, nil
}

func (c *REST) Search(ctx context.Context, teamID int, q string, limit int) ([]domain.ChatMessage, error) {
	query := url.Values{"q": {q}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var page []ws.ChatMessagePayload
	if _, err := c.get(ctx, fmt.Sprintf("/api/teams/%d/messages/search", teamID), query, &page); err != nil {
		return nil, err
	}
	return fromPayloads(page)
}

// Open joins the team and waits for the server to acknowledge it before
// loading the latest page, so a message posted in between is either streamed
// live or part of the page. The timeline dedupes the overlap.
func (c *Client) Open(ctx context.Context, teamID, limit int) (*projection.Timeline, error) {
	timeline := projection.NewTimeline(domain.TeamID(teamID))
	if err := c.JoinTeam(teamID); err != nil {
		return nil, err
	}
	if err := c.awaitJoin(ctx, teamID); err != nil {
		return nil, err
	}
	page, _, err := c.History(ctx, teamID, limit, nil)
	if err != nil {
		return nil, err
	}
	timeline.LoadHistory(page)
	return timeline, nil
}

// awaitJoin consumes acknowledgements until the one for teamID, or the
// refusal of the join.
func (c *Client) awaitJoin(ctx context.Context, teamID int) error {
	for {
		select {
		case ack := <-c.joined:
			if ack.TeamID == teamID {
				return nil
			}
		case refused := <-c.errors:
			if refused.Event == ws.EventJoinTeam {
				return fmt.Errorf("join of team %d refused: %s", teamID, refused.Code)
			}
			c.log.Warn("Server refused an event", "event", refused.Event, "code", refused.Code)
		case <-c.done:
			return fmt.Errorf("connection closed before team %d was joined: %v", teamID, c.Err())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close sends a normal closure and releases the connection.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.options.WriteTimeout))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop is the only sender on messages, it closes it when the connection ends.
func (c *Client) readLoop() {
	defer func() {
		close(c.messages)
		close(c.done)
	}()
	for {
		var env ws.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.readErr = err
			}
			return
		}
		if len(env.Args) == 0 {
			continue
		}
		switch env.Event {
		case ws.EventChatMessage:
			var payload ws.ChatMessagePayload
			if err := json.Unmarshal(env.Args[0], &payload); err != nil {
				c.log.Warn("Malformed chat message", "error", err)
				continue
			}
			message, err := ws.FromChatMessagePayload(payload)
			if err != nil {
				c.log.Warn("Malformed chat message", "error", err)
				continue
			}
			select {
			case c.messages <- message:
			case <-c.stop:
				return
			}
		case ws.EventJoinTeam:
			var payload ws.TeamJoinedPayload
			if err := json.Unmarshal(env.Args[0], &payload); err == nil {
				c.publishJoined(payload)
			}
		case ws.EventError:
			var payload ws.ErrorPayload
			if err := json.Unmarshal(env.Args[0], &payload); err == nil {
				c.publishError(payload)
			}
		default:
			c.log.Debug("Ignoring event", "event", env.Event)
		}
	}
}

// Acknowledgements and errors are informative, they never block reading.
func (c *Client) publishJoined(payload ws.TeamJoinedPayload) {
	select {
	case c.joined <- payload:
	default:
	}
}

func (c *Client) publishError(payload ws.ErrorPayload) {
	select {
	case c.errors <- payload:
	default:
		c.log.Warn("Server refused an event", "event", payload.Event, "code", payload.Code)
	}
}

func (c *REST) get(ctx context.Context, path string, query url.Values, target any) (http.Header, error) {
	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + path
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, values := range authHeader(c.token) {
		req.Header[key] = values
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return nil, fmt.Errorf("%s %s: status %d %s", http.MethodGet, path, resp.StatusCode, failure.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return resp.Header, nil
}

func authHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

func fromPayloads(page []ws.ChatMessagePayload) ([]domain.ChatMessage, error) {
	messages := make([]domain.ChatMessage, 0, len(page))
	for _, p := range page {
		m, err := ws.FromChatMessagePayload(p)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}
