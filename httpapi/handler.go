// Package httpapi serves the REST side of the chat: history, search and
// operational endpoints. The websocket endpoint is mounted on the same router.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"team-chat/auth"
	"team-chat/domain"
	"team-chat/errors"
	"team-chat/observability"
	"team-chat/services"
	"team-chat/ws"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const NextCursorHeader = "X-Next-Cursor"

type Handler struct {
	log     *slog.Logger
	history services.IHistoryService
	stats   func() observability.Stats
}

func NewHandler(log *slog.Logger, history services.IHistoryService, stats func() observability.Stats) *Handler {
	return &Handler{log: log, history: history, stats: stats}
}

// NewRouter wires every route. chat is the websocket endpoint, served on /ws.
func NewRouter(h *Handler, authenticator auth.Authenticator, chat http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/ws", chat).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/debug/stats", h.Stats).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authenticator.RequireToken)
	api.HandleFunc("/teams/{teamId}/messages", h.History).Methods(http.MethodGet)
	api.HandleFunc("/teams/{teamId}/messages/search", h.Search).Methods(http.MethodGet)
	return router
}

// History answers GET /api/teams/{teamId}/messages?limit=&before=
// Messages are newest first, the next page cursor travels in X-Next-Cursor.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	teamID, err := teamParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var before *string
	if raw := strings.TrimSpace(r.URL.Query().Get("before")); raw != "" {
		before = &raw
	}

	messages, next, err := h.history.GetMessages(teamID, limit, before)
	if err != nil {
		h.fail(w, err)
		return
	}
	if next != nil {
		w.Header().Set(NextCursorHeader, *next)
	}
	h.respond(w, http.StatusOK, payloads(messages))
}

// Search answers GET /api/teams/{teamId}/messages/search?q=&limit=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	teamID, err := teamParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	messages, err := h.history.Search(r.Context(), teamID, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, payloads(messages))
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, h.stats())
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
	} else {
		h.log.Debug("Request refused", "error", err)
	}
	h.respond(w, status, errorResponse{Error: errors.Code(err), Message: err.Error()})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("Response not written", "error", err)
	}
}

func teamParam(r *http.Request) (int, error) {
	teamID, err := domain.ParseTeamID(mux.Vars(r)["teamId"])
	if err != nil {
		return 0, errors.ErrInvalidTeamID
	}
	return int(teamID), nil
}

// limitParam returns 0 when absent, letting the service apply its default.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.ErrInvalidPayload
	}
	return limit, nil
}

func payloads(messages []domain.ChatMessage) []ws.ChatMessagePayload {
	return lo.Map(messages, func(m domain.ChatMessage, _ int) ws.ChatMessagePayload {
		return ws.ToChatMessagePayload(m)
	})
}
