package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/domain"
)

// TokenVerifier turns a bearer token into an identity.
// *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Gate decides whether a verified identity may use the API and fills in its
// admin flag. *auth.Whitelist satisfies it.
type Gate interface {
	Check(ctx context.Context, id auth.Identity) (auth.Identity, error)
}

// NewAuthHandler returns a middleware that requires a valid bearer token from
// a whitelisted user. Missing or invalid tokens get 401, users not on the
// whitelist get 403. On success the identity is attached to the request
// context for auth.Require.
//
// Browsers cannot set headers on websocket upgrades, so for those requests
// the token may also be passed as the access_token query parameter.
func NewAuthHandler(v TokenVerifier, gate Gate, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			id, err := v.Verify(token)
			if err != nil {
				log.DebugContext(r.Context(), "auth: token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid bearer token")
				return
			}
			id, err = gate.Check(r.Context(), id)
			switch {
			case errors.Is(err, domain.ErrForbidden):
				writeError(w, http.StatusForbidden, "forbidden", "user is not allowed to use this service")
				return
			case err != nil:
				log.ErrorContext(r.Context(), "auth: whitelist check failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if isUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
