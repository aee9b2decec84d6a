package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
	ErrUnauthenticated  = fmt.Errorf("unauthenticated")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrEmptyMessage     = fmt.Errorf("message text is empty")
	ErrMessageTooLong   = fmt.Errorf("message text is too long")
	ErrInvalidTeamID    = fmt.Errorf("invalid team id")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrUnknownEvent     = fmt.Errorf("unknown event")
	ErrSessionNotActive = fmt.Errorf("session is not active")
	ErrSlowConsumer     = fmt.Errorf("connection buffer is full")
	ErrRateLimited      = fmt.Errorf("rate limit exceeded")
	ErrInvalidCursor    = fmt.Errorf("invalid cursor")
	ErrEmptyQuery       = fmt.Errorf("search query is empty")
)

// Code returns the short code sent to clients in an error event.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidToken):
		return "unauthenticated"
	case errors.Is(err, ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, ErrInvalidTeamID):
		return "invalid_team_id"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, ErrInvalidCursor):
		return "invalid_cursor"
	case errors.Is(err, ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrEmptyMessage):
		return "invalid_payload"
	default:
		return "internal"
	}
}

// MapToHTTPStatus converts domain errors to HTTP status codes.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidTeamID),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
