package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/backup"
	"github.com/pkordes/travelogue/internal/blob"
	"github.com/pkordes/travelogue/internal/docstore/memory"
	"github.com/pkordes/travelogue/internal/handler"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/store"
)

// asAnn stands in for the bearer middleware: every request is made by a
// whitelisted user.
func asAnn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithIdentity(r.Context(), auth.Identity{UID: "u1", Email: "ann@example.com"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type app struct {
	http.Handler
	ds  *memory.Store
	set *store.Set
}

// newApp wires the real stores and backup service over an in-memory
// document store into the production router, the same way main.go does.
func newApp(t *testing.T, layout store.Layout) app {
	t.Helper()
	ds := memory.New(nil)
	p := ingest.New(nil)
	set, err := store.NewSet(ds, layout, p)
	require.NoError(t, err)

	backups := backup.New(ds, backup.Children{
		Plans:       set.Backends.Plans,
		Expenses:    set.Backends.Expenses,
		Collections: set.Backends.Collections,
	}, p, blob.NewMemory(), nil)

	srv := handler.NewServer(handler.Deps{
		Trips:       set.Trips,
		Plans:       set.Plans,
		Expenses:    set.Expenses,
		Collections: set.Collections,
		Feeds:       set,
		Backups:     backups,
	})
	return app{
		Handler: handler.NewRouter(srv, handler.RouterConfig{Auth: asAnn, MaxBodyBytes: 1 << 20}),
		ds:      ds,
		set:     set,
	}
}

// newMockApp wires a Server built from deps, behind the fake auth.
func newMockApp(deps handler.Deps) http.Handler {
	return handler.NewRouter(handler.NewServer(deps), handler.RouterConfig{Auth: asAnn})
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return bytes.NewBufferString(s)
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, jsonBody(t, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func tripBody() map[string]any {
	return map[string]any{"title": "Kyoto", "startDate": "2024-03-20", "endDate": "2024-03-22"}
}

// createTrip posts a trip and returns its id.
func createTrip(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/trips", tripBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["id"].(string)
}
