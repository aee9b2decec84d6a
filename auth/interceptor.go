package auth

import (
	"context"
	"net/http"

	"team-chat/domain"
	"team-chat/errors"
)

type contextKey string

const identityKey contextKey = "identity"

// RequireToken rejects requests without a valid bearer token with 401,
// whatever the realtime policy is.
func (a Authenticator) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.FromToken(BearerToken(r))
		if err != nil {
			a.log.Debug("Rejected unauthenticated request", "path", r.URL.Path, "error", err)
			http.Error(w, errors.ErrUnauthenticated.Error(), errors.MapToHTTPStatus(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity injected by RequireToken.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}
