package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"team-chat/domain"
	"team-chat/errors"
)

// Policy decides what happens to connections without a valid token.
type Policy string

const (
	// PolicyStrict rejects the handshake when no identity can be resolved.
	PolicyStrict Policy = "strict"
	// PolicyAnonymous accepts the connection with a display-name-only identity.
	PolicyAnonymous Policy = "anonymous"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyAnonymous:
		return PolicyAnonymous, nil
	default:
		return "", fmt.Errorf("unknown auth policy %q (expected %q or %q)", s, PolicyStrict, PolicyAnonymous)
	}
}

// Authenticator resolves the identity of a connecting client from its transport credentials.
type Authenticator struct {
	log    *slog.Logger
	tokens TokenService
	policy Policy
}

func NewAuthenticator(log *slog.Logger, tokens TokenService, policy Policy) Authenticator {
	return Authenticator{log: log, tokens: tokens, policy: policy}
}

func (a Authenticator) Policy() Policy {
	return a.policy
}

// Authenticate returns the identity carried by the request.
// Under PolicyStrict a missing or invalid token is ErrUnauthenticated.
// Under PolicyAnonymous it falls back to the "username" query parameter, then to "Unknown".
func (a Authenticator) Authenticate(r *http.Request) (domain.Identity, error) {
	identity, err := a.FromToken(BearerToken(r))
	if err == nil {
		return identity, nil
	}
	if a.policy == PolicyStrict {
		return domain.Identity{}, err
	}
	a.log.Debug("Falling back to anonymous identity", "error", err)
	return domain.AnonymousIdentity(DisplayName(r.URL.Query().Get("username"))), nil
}

// FromToken validates a raw token, an empty token is ErrUnauthenticated.
func (a Authenticator) FromToken(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, errors.ErrUnauthenticated
	}
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, err)
	}
	return domain.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}

// BearerToken reads the "Authorization: Bearer" header, then the "token" query parameter.
// Browsers cannot set headers on a websocket upgrade, hence the query fallback.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
