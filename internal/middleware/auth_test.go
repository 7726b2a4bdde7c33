package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/docstore/memory"
	"github.com/pkordes/travelogue/internal/middleware"
)

// whoami echoes the identity the middleware attached.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	if id.IsAdmin {
		w.Header().Set("X-Admin", "true")
	}
	_, _ = w.Write([]byte(id.OwnerID()))
})

func newAuthHandler(t *testing.T) (http.Handler, *auth.Verifier) {
	t.Helper()
	v, err := auth.NewVerifier("s3cret", "travelogue", time.Hour)
	require.NoError(t, err)
	wl := auth.NewWhitelist(memory.New(nil))
	require.NoError(t, wl.Allow(context.Background(), "ann@example.com", true))
	return middleware.NewAuthHandler(v, wl, nil)(whoami), v
}

func TestAuthHandler_AttachesIdentity(t *testing.T) {
	h, v := newAuthHandler(t)
	tok, err := v.Issue("u1", "ann@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ann@example.com", rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get("X-Admin"))
}

func TestAuthHandler_Rejections(t *testing.T) {
	h, v := newAuthHandler(t)
	stranger, err := v.Issue("u2", "bob@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, `"unauthenticated"`},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, `"unauthenticated"`},
		{"garbage token", "Bearer nope", http.StatusUnauthorized, `"unauthenticated"`},
		{"not whitelisted", "Bearer " + stranger, http.StatusForbidden, `"forbidden"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/trips", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.code)
		})
	}
}

func TestAuthHandler_QueryTokenOnlyForWebsocket(t *testing.T) {
	h, v := newAuthHandler(t)
	tok, err := v.Issue("u1", "ann@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/live/trips?access_token="+tok, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/live/trips?access_token="+tok, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
