package services

import (
	"strings"
	"testing"
	"time"

	"team-chat/auth"
	"team-chat/errors"

	"github.com/stretchr/testify/require"
)

func TestAuthService_Issue(t *testing.T) {
	tokens := auth.NewTokenService("secret", "team-chat")
	svc := NewAuthService(tokens, time.Hour)

	t.Run("should issue a token carrying the identity", func(t *testing.T) {
		req := require.New(t)

		token, err := svc.Issue("u-1", " alice ", []string{"member"})

		req.NoError(err)
		claims, err := tokens.ValidateToken(token.String())
		req.NoError(err)
		req.Equal("u-1", claims.UserID)
		req.Equal("alice", claims.Username)
		req.Equal([]string{"member"}, claims.Roles)
	})

	t.Run("should fail without user id", func(t *testing.T) {
		_, err := svc.Issue("  ", "alice", nil)
		require.ErrorIs(t, err, errors.ErrInvalidPayload)
	})

	t.Run("should fail when the username is too long", func(t *testing.T) {
		_, err := svc.Issue("u-1", strings.Repeat("a", auth.MaxUsernameLength+1), nil)
		require.ErrorIs(t, err, errors.ErrInvalidPayload)
	})
}
