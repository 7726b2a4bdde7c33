// Package handler implements the HTTP and websocket handlers for the
// Travelogue API. All handlers are methods on Server; they are split into
// domain-specific files (trip.go, plan.go, live.go, ...) but share its
// dependencies.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pkordes/travelogue/internal/backup"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

// TripStorer defines the trip operations the handlers depend on.
// *store.TripStore satisfies it. Defining the interface here lets handler
// tests inject a mock without a document store.
type TripStorer interface {
	List(ctx context.Context) ([]domain.Trip, error)
	Get(ctx context.Context, id string) (domain.Trip, error)
	Create(ctx context.Context, payload map[string]any) (string, error)
	Update(ctx context.Context, id string, patch map[string]any) error
	Delete(ctx context.Context, id string) error
	UpsertBooking(ctx context.Context, tripID string, booking map[string]any) (string, error)
	DeleteBooking(ctx context.Context, tripID, bookingID string) error
	UpsertChecklistItem(ctx context.Context, tripID string, item map[string]any) (string, error)
	DeleteChecklistItem(ctx context.Context, tripID, itemID string) error
	ToggleChecklistItem(ctx context.Context, tripID, itemID string) error
}

// PlanStorer defines the daily-plan operations. *store.PlanStore satisfies it.
type PlanStorer interface {
	List(ctx context.Context, tripID string) ([]domain.DailyPlan, error)
	GetOrCreate(ctx context.Context, tripID, date string) (*string, domain.DailyPlan, error)
	UpsertActivity(ctx context.Context, tripID, date string, activity map[string]any) (string, error)
	DeleteActivity(ctx context.Context, tripID, date, activityID string) error
}

// ChildStorer is the CRUD surface shared by expenses and research
// collections. *store.ExpenseStore and *store.CollectionStore satisfy it.
type ChildStorer[T any] interface {
	List(ctx context.Context, tripID string) ([]T, error)
	Get(ctx context.Context, tripID, id string) (T, error)
	Create(ctx context.Context, tripID string, payload map[string]any) (string, error)
	Update(ctx context.Context, tripID, id string, patch map[string]any) error
	Delete(ctx context.Context, tripID, id string) error
}

// Feeds starts live queries for websocket clients. *store.Set satisfies it.
type Feeds interface {
	SubscribeTrips(ctx context.Context, onChange func([]domain.Trip)) docstore.Unsubscribe
	SubscribePlans(ctx context.Context, tripID string, onChange func([]domain.DailyPlan)) docstore.Unsubscribe
	SubscribeExpenses(ctx context.Context, tripID string, onChange func([]domain.Expense)) docstore.Unsubscribe
	SubscribeCollections(ctx context.Context, tripID string, onChange func([]domain.Collection)) docstore.Unsubscribe
}

// Backupper is the export/import and cloud backup surface.
// *backup.Service satisfies it.
type Backupper interface {
	ExportAll(ctx context.Context, userID string) (backup.Package, error)
	ExportTrip(ctx context.Context, tripID string) (backup.SinglePackage, error)
	ImportAll(ctx context.Context, userID string, r io.Reader) error
	ImportTrip(ctx context.Context, userID string, r io.Reader) (string, error)
	CreateCloudBackup(ctx context.Context, userID string) (backup.CloudBackup, error)
	ListCloudBackups(ctx context.Context, userID string) ([]backup.CloudBackup, error)
	RestoreCloudBackup(ctx context.Context, userID, id string) error
}

// Deps are the Server's collaborators. Any of them may be nil in tests that
// do not reach the matching routes.
type Deps struct {
	Trips       TripStorer
	Plans       PlanStorer
	Expenses    ChildStorer[domain.Expense]
	Collections ChildStorer[domain.Collection]
	Feeds       Feeds
	Backups     Backupper
	Log         *slog.Logger

	// CheckOrigin vets websocket upgrades. Nil accepts same-origin
	// requests only.
	CheckOrigin func(r *http.Request) bool
}

// Server holds the dependencies shared by every handler.
type Server struct {
	trips       TripStorer
	plans       PlanStorer
	expenses    ChildStorer[domain.Expense]
	collections ChildStorer[domain.Collection]
	feeds       Feeds
	backups     Backupper
	log         *slog.Logger
	upgrader    websocket.Upgrader
}

// NewServer constructs the Server with all its dependencies.
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		trips:       d.Trips,
		plans:       d.Plans,
		expenses:    d.Expenses,
		collections: d.Collections,
		feeds:       d.Feeds,
		backups:     d.Backups,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     d.CheckOrigin,
		},
	}
}

// AllowOrigins returns a CheckOrigin that accepts requests without an
// Origin header and those whose Origin is listed exactly.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// Routes registers every authenticated route on r. The caller installs the
// auth and rate-limit middleware; see NewRouter.
func (s *Server) Routes(r chi.Router) {
	r.Route("/trips", func(r chi.Router) {
		r.Get("/", s.ListTrips)
		r.Post("/", s.CreateTrip)

		r.Route("/{tripID}", func(r chi.Router) {
			r.Get("/", s.GetTrip)
			r.Patch("/", s.UpdateTrip)
			r.Delete("/", s.DeleteTrip)

			r.Put("/bookings", s.UpsertBooking)
			r.Delete("/bookings/{id}", s.DeleteBooking)

			r.Put("/checklist", s.UpsertChecklistItem)
			r.Post("/checklist/{id}/toggle", s.ToggleChecklistItem)
			r.Delete("/checklist/{id}", s.DeleteChecklistItem)

			r.Get("/plans", s.ListPlans)
			r.Get("/plans/{date}", s.GetPlan)
			r.Put("/plans/{date}/activities", s.UpsertActivity)
			r.Delete("/plans/{date}/activities/{id}", s.DeleteActivity)
			r.Get("/schedule", s.GetSchedule)

			r.Route("/expenses", childHandler[domain.Expense]{s: s, store: s.expenses, noun: "expense"}.routes)
			r.Route("/collections", childHandler[domain.Collection]{s: s, store: s.collections, noun: "collection"}.routes)

			r.Get("/export", s.ExportTrip)
		})
	})

	r.Get("/export", s.ExportAll)
	r.Post("/import", s.ImportAll)
	r.Post("/import/trip", s.ImportTrip)

	r.Get("/backups", s.ListBackups)
	r.Post("/backups", s.CreateBackup)
	r.Post("/backups/{backupID}/restore", s.RestoreBackup)

	r.Get("/live/trips", s.LiveTrips)
	r.Get("/live/trips/{tripID}/{feed}", s.LiveTripFeed)
}
