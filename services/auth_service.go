package services

import (
	"fmt"
	"strings"
	"time"

	"team-chat/auth"
	"team-chat/errors"
)

type IAuthService interface {
	Issue(userID, username string, roles []string) (Token, error)
}

// AuthService issues the tokens an identity provider would hand to chat clients.
// It backs the operator tooling, the chat server itself only verifies tokens.
type AuthService struct {
	tokens   auth.TokenService
	duration time.Duration
}

type Token string

func (t Token) String() string {
	return string(t)
}

func NewAuthService(tokens auth.TokenService, duration time.Duration) IAuthService {
	return &AuthService{tokens: tokens, duration: duration}
}

func (s *AuthService) Issue(userID, username string, roles []string) (Token, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", errors.ErrInvalidPayload)
	}
	name := auth.DisplayName(username)
	if name == "" && strings.TrimSpace(username) != "" {
		return "", fmt.Errorf("%w: username must be at most %d printable characters", errors.ErrInvalidPayload, auth.MaxUsernameLength)
	}

	token, err := s.tokens.GenerateToken(userID, name, roles, s.duration)
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return Token(token), nil
}
