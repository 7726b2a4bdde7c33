package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/handler"
	"github.com/pkordes/travelogue/internal/metrics"
	"github.com/pkordes/travelogue/internal/store"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until one satisfies ok, failing after a deadline.
func readUntil[T any](t *testing.T, conn *websocket.Conn, ok func(handler.LiveMessage[T]) bool) handler.LiveMessage[T] {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg handler.LiveMessage[T]
		require.NoError(t, conn.ReadJSON(&msg))
		if ok(msg) {
			return msg
		}
	}
}

func TestLive_TripsFeed(t *testing.T) {
	a := newApp(t, store.LayoutCollections)
	srv := httptest.NewServer(a)
	defer srv.Close()

	before := promtest.ToFloat64(metrics.LiveSubscriptions)
	conn := dial(t, srv, "/live/trips")

	first := readUntil(t, conn, func(handler.LiveMessage[domain.Trip]) bool { return true })
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, "trips", first.Feed)
	assert.Empty(t, first.Data)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.LiveSubscriptions))

	id := createTrip(t, a)
	msg := readUntil(t, conn, func(m handler.LiveMessage[domain.Trip]) bool { return len(m.Data) == 1 })
	assert.Equal(t, id, msg.Data[0].ID)
	assert.Equal(t, "Kyoto", msg.Data[0].Title)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.LiveSubscriptions) == before
	}, 3*time.Second, 20*time.Millisecond)
}

func TestLive_ExpensesFeed(t *testing.T) {
	for _, layout := range []store.Layout{store.LayoutCollections, store.LayoutEmbedded} {
		t.Run(string(layout), func(t *testing.T) {
			a := newApp(t, layout)
			srv := httptest.NewServer(a)
			defer srv.Close()
			id := createTrip(t, a)

			conn := dial(t, srv, "/live/trips/"+id+"/expenses")
			require.Equal(t, http.StatusCreated, do(t, a, http.MethodPost, "/trips/"+id+"/expenses", expenseBody("2024-03-21")).Code)

			msg := readUntil(t, conn, func(m handler.LiveMessage[domain.Expense]) bool { return len(m.Data) == 1 })
			assert.Equal(t, "expenses", msg.Feed)
			assert.Equal(t, "ramen", msg.Data[0].Description)
		})
	}
}

func TestLive_RejectsUnknownFeedAndTrip(t *testing.T) {
	a := newApp(t, store.LayoutCollections)
	id := createTrip(t, a)

	rec := do(t, a, http.MethodGet, "/live/trips/"+id+"/bookings", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, a, http.MethodGet, "/live/trips/missing/plans", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "trip not found", decode[handler.ErrorResponse](t, rec).Error.Message)
}

func TestAllowOrigins(t *testing.T) {
	check := handler.AllowOrigins([]string{"http://localhost:5173"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/live/trips", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(req))
		})
	}
}
