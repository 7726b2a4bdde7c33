package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LiveMessage is one frame pushed to a websocket feed. Every snapshot frame
// carries the full, validated list; clients replace what they hold.
type LiveMessage[T any] struct {
	Type string `json:"type"`
	Feed string `json:"feed"`
	Data []T    `json:"data"`
}

// LiveTrips handles GET /live/trips.
func (s *Server) LiveTrips(w http.ResponseWriter, r *http.Request) {
	serveFeed(s, w, r, "trips", s.feeds.SubscribeTrips)
}

// LiveTripFeed handles GET /live/trips/{tripID}/{feed} for the plans,
// expenses and collections feeds of one trip.
func (s *Server) LiveTripFeed(w http.ResponseWriter, r *http.Request) {
	tripID, feed := chi.URLParam(r, "tripID"), chi.URLParam(r, "feed")
	switch feed {
	case docstore.CollectionPlans, docstore.CollectionExpenses, docstore.CollectionCollections:
	default:
		writeJSON(w, http.StatusNotFound, notFoundBody("unknown feed "+feed))
		return
	}
	if err := s.tripExists(r.Context(), tripID); err != nil {
		s.writeError(w, r, err, "trip")
		return
	}

	switch feed {
	case docstore.CollectionPlans:
		serveFeed(s, w, r, feed, func(ctx context.Context, fn func([]domain.DailyPlan)) docstore.Unsubscribe {
			return s.feeds.SubscribePlans(ctx, tripID, fn)
		})
	case docstore.CollectionExpenses:
		serveFeed(s, w, r, feed, func(ctx context.Context, fn func([]domain.Expense)) docstore.Unsubscribe {
			return s.feeds.SubscribeExpenses(ctx, tripID, fn)
		})
	case docstore.CollectionCollections:
		serveFeed(s, w, r, feed, func(ctx context.Context, fn func([]domain.Collection)) docstore.Unsubscribe {
			return s.feeds.SubscribeCollections(ctx, tripID, fn)
		})
	}
}

// serveFeed upgrades the request and pushes every delivered list until the
// client goes away. Only the newest pending list is kept, so a slow client
// skips intermediate states instead of stalling the subscription.
func serveFeed[T any](s *Server, w http.ResponseWriter, r *http.Request, feed string, start func(context.Context, func([]T)) docstore.Unsubscribe) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.DebugContext(r.Context(), "live: upgrade failed", "feed", feed, "error", err)
		return
	}
	defer conn.Close()

	metrics.LiveSubscriptions.Inc()
	defer metrics.LiveSubscriptions.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan []T, 1)
	unsub := start(ctx, func(items []T) {
		select {
		case <-updates:
		default:
		}
		updates <- items
	})
	defer unsub()

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.InfoContext(r.Context(), "live: feed opened", "feed", feed)
	defer s.log.InfoContext(r.Context(), "live: feed closed", "feed", feed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case items := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(LiveMessage[T]{Type: "snapshot", Feed: feed, Data: items}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
