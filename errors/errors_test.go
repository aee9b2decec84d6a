package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Nil", nil, http.StatusOK},
		{"Unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"Wrapped invalid token", fmt.Errorf("history: %w", ErrInvalidToken), http.StatusUnauthorized},
		{"Invalid team", ErrInvalidTeamID, http.StatusBadRequest},
		{"Invalid cursor", ErrInvalidCursor, http.StatusBadRequest},
		{"Empty query", ErrEmptyQuery, http.StatusBadRequest},
		{"Unknown", fmt.Errorf("badger exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MapToHTTPStatus(tt.err))
		})
	}
}

func TestCode(t *testing.T) {
	req := require.New(t)
	req.Equal("unauthenticated", Code(fmt.Errorf("send: %w", ErrUnauthenticated)))
	req.Equal("message_too_long", Code(ErrMessageTooLong))
	req.Equal("rate_limited", Code(ErrRateLimited))
	req.Equal("unknown_event", Code(ErrUnknownEvent))
	req.Equal("invalid_cursor", Code(ErrInvalidCursor))
	req.Equal("internal", Code(fmt.Errorf("boom")))
}
