// Package backup exports a user's trips with all their child resources as a
// versioned JSON package and restores such packages, either from a caller
// supplied stream or from cloud backups kept in a blob.Store.
//
// Every document read for export goes through the same ingestion pipeline
// as the live stores, and every import is validated in full before the
// first write.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pkordes/travelogue/internal/blob"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/metrics"
	"github.com/pkordes/travelogue/internal/schema"
	"github.com/pkordes/travelogue/internal/store"
)

// Version is written into every package this service produces.
const Version = "1.1"

// TripBundle is one trip with its child resources.
type TripBundle struct {
	Data        domain.Trip         `json:"data"`
	Plans       []domain.DailyPlan  `json:"plans"`
	Expenses    []domain.Expense    `json:"expenses"`
	Collections []domain.Collection `json:"collections"`
}

// Package is the full export of one user's data.
type Package struct {
	Version    string       `json:"version"`
	ExportedAt string       `json:"exportedAt"`
	UserID     string       `json:"userId"`
	Trips      []TripBundle `json:"trips"`
}

// SinglePackage is the export of one trip.
type SinglePackage struct {
	Version    string     `json:"version"`
	ExportedAt string     `json:"exportedAt"`
	Trip       TripBundle `json:"trip"`
}

// Children are the backends of a trip's child collections.
type Children struct {
	Plans       store.ChildBackend
	Expenses    store.ChildBackend
	Collections store.ChildBackend
}

func (c Children) all() []store.ChildBackend {
	return []store.ChildBackend{c.Plans, c.Expenses, c.Collections}
}

// Service implements export, import and cloud backups.
type Service struct {
	ds       docstore.Store
	children Children
	pipeline *ingest.Pipeline
	blobs    blob.Store
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for export and backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service. blobs may be nil, in which case the cloud backup
// operations fail.
func New(ds docstore.Store, children Children, p *ingest.Pipeline, blobs blob.Store, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{ds: ds, children: children, pipeline: p, blobs: blobs, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// ExportAll returns every trip owned by userID.
func (s *Service) ExportAll(ctx context.Context, userID string) (_ Package, err error) {
	defer func() { metrics.BackupOperations.WithLabelValues("export_all", metrics.Result(err)).Inc() }()

	snaps, err := s.ds.Query(ctx, docstore.Query{Collection: docstore.CollectionTrips}.WhereEq("userId", userID))
	if err != nil {
		return Package{}, fmt.Errorf("backup.Service.ExportAll: %w", err)
	}
	trips := ingest.FilterValid[domain.Trip](s.pipeline, schema.KindTrip, snaps, nil)

	bundles := make([]TripBundle, len(trips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, trip := range trips {
		g.Go(func() error {
			b, err := s.bundle(gctx, trip)
			if err != nil {
				return err
			}
			bundles[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Package{}, fmt.Errorf("backup.Service.ExportAll: %w", err)
	}
	return Package{Version: Version, ExportedAt: s.stamp(), UserID: userID, Trips: bundles}, nil
}

// ExportTrip returns one trip with its child resources.
func (s *Service) ExportTrip(ctx context.Context, tripID string) (_ SinglePackage, err error) {
	defer func() { metrics.BackupOperations.WithLabelValues("export_trip", metrics.Result(err)).Inc() }()

	snap, err := s.ds.Get(ctx, docstore.Trip(tripID))
	if err != nil {
		return SinglePackage{}, fmt.Errorf("backup.Service.ExportTrip: %w", err)
	}
	trip, ok := ingest.One[domain.Trip](s.pipeline, schema.KindTrip, tripID, ingest.WithID(snap))
	if !ok {
		return SinglePackage{}, fmt.Errorf("backup.Service.ExportTrip %s: invalid document: %w", tripID, domain.ErrNotFound)
	}
	b, err := s.bundle(ctx, trip)
	if err != nil {
		return SinglePackage{}, fmt.Errorf("backup.Service.ExportTrip: %w", err)
	}
	return SinglePackage{Version: Version, ExportedAt: s.stamp(), Trip: b}, nil
}

// bundle reads the trip's children concurrently. Plans embedded in the trip
// document are reported once, in Plans.
func (s *Service) bundle(ctx context.Context, trip domain.Trip) (TripBundle, error) {
	b := TripBundle{Data: trip}
	b.Data.Plans = nil

	withTrip := func(snap docstore.Snapshot) map[string]any {
		m := ingest.WithID(snap)
		if _, ok := m["tripId"]; !ok {
			m["tripId"] = trip.ID
		}
		return m
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snaps, err := s.children.Plans.List(gctx, trip.ID, docstore.Query{OrderBy: "date"})
		if err != nil {
			return fmt.Errorf("plans of %s: %w", trip.ID, err)
		}
		b.Plans = ingest.FilterValid[domain.DailyPlan](s.pipeline, schema.KindDailyPlan, snaps, withTrip)
		return nil
	})
	g.Go(func() error {
		snaps, err := s.children.Expenses.List(gctx, trip.ID, docstore.Query{OrderBy: "date", Desc: true})
		if err != nil {
			return fmt.Errorf("expenses of %s: %w", trip.ID, err)
		}
		b.Expenses = ingest.FilterValid[domain.Expense](s.pipeline, schema.KindExpense, snaps, nil)
		return nil
	})
	g.Go(func() error {
		snaps, err := s.children.Collections.List(gctx, trip.ID, docstore.Query{OrderBy: "createdAt", Desc: true})
		if err != nil {
			return fmt.Errorf("collections of %s: %w", trip.ID, err)
		}
		b.Collections = ingest.FilterValid[domain.Collection](s.pipeline, schema.KindCollection, snaps, nil)
		return nil
	})
	if err := g.Wait(); err != nil {
		return TripBundle{}, err
	}
	return b, nil
}

// ClearUserData deletes every trip owned by userID together with its child
// resources. It can be rerun after a partial failure.
func (s *Service) ClearUserData(ctx context.Context, userID string) error {
	snaps, err := s.ds.Query(ctx, docstore.Query{Collection: docstore.CollectionTrips}.WhereEq("userId", userID))
	if err != nil {
		return fmt.Errorf("backup.Service.ClearUserData: %w", err)
	}
	for _, snap := range snaps {
		if err := s.deleteTrip(ctx, snap.ID); err != nil {
			return fmt.Errorf("backup.Service.ClearUserData: %w", err)
		}
	}
	return nil
}

func (s *Service) deleteTrip(ctx context.Context, tripID string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.children.all() {
		g.Go(func() error { return c.DeleteAll(gctx, tripID) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("trip %s children: %w", tripID, err)
	}
	return s.ds.Delete(ctx, docstore.Trip(tripID))
}
