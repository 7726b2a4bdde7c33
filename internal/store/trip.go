package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/schema"
)

const (
	fieldBookings    = "bookings"
	fieldPreparation = "preparation"
)

var tripOrder = docstore.Query{Collection: docstore.CollectionTrips, OrderBy: "startDate", Desc: true}

// TripStore manages trips and the bookings and checklist embedded in them.
type TripStore struct {
	liveView[domain.Trip]

	ds       docstore.Store
	pipeline *ingest.Pipeline
	children []ChildBackend
}

// NewTripStore returns a TripStore. children are the trip's child resources;
// Delete clears each of them before removing the trip.
func NewTripStore(ds docstore.Store, p *ingest.Pipeline, children ...ChildBackend) *TripStore {
	return &TripStore{ds: ds, pipeline: p, children: children}
}

// Subscribe streams all trips, latest start date first. Without an
// identity in ctx it is a no-op.
func (s *TripStore) Subscribe(ctx context.Context, onChange func([]domain.Trip)) docstore.Unsubscribe {
	return subscribe(ctx, &s.liveView, s.pipeline, schema.KindTrip, s.ds.Listen, tripOrder, nil, onChange)
}

// SubscribeTrip streams one trip. Every valid snapshot also refreshes the
// matching entry of View. Missing or invalid snapshots are not delivered.
func (s *TripStore) SubscribeTrip(ctx context.Context, id string, onChange func(domain.Trip)) docstore.Unsubscribe {
	if _, ok := auth.FromContext(ctx); !ok {
		return noop
	}
	unsub, err := s.ds.ListenDoc(ctx, docstore.Trip(id), func(snap docstore.Snapshot) {
		if !snap.Exists {
			return
		}
		trip, ok := ingest.One[domain.Trip](s.pipeline, schema.KindTrip, snap.ID, ingest.WithID(snap))
		if !ok {
			return
		}
		s.update(trip, func(t domain.Trip) bool { return t.ID == trip.ID })
		if onChange != nil {
			onChange(trip)
		}
	}, s.fail)
	if err != nil {
		s.fail(err)
		return noop
	}
	return unsub
}

// List is a one-shot read of all trips, latest start date first.
func (s *TripStore) List(ctx context.Context) ([]domain.Trip, error) {
	snaps, err := s.ds.Query(ctx, tripOrder)
	if err != nil {
		return nil, fmt.Errorf("store.TripStore.List: %w", err)
	}
	return ingest.FilterValid[domain.Trip](s.pipeline, schema.KindTrip, snaps, nil), nil
}

// ListByOwner returns the trips whose userId is owner.
func (s *TripStore) ListByOwner(ctx context.Context, owner string) ([]domain.Trip, error) {
	snaps, err := s.ds.Query(ctx, tripOrder.WhereEq("userId", owner))
	if err != nil {
		return nil, fmt.Errorf("store.TripStore.ListByOwner: %w", err)
	}
	return ingest.FilterValid[domain.Trip](s.pipeline, schema.KindTrip, snaps, nil), nil
}

// Get returns one trip. A stored trip that fails validation is reported as
// domain.ErrNotFound.
func (s *TripStore) Get(ctx context.Context, id string) (domain.Trip, error) {
	snap, err := s.ds.Get(ctx, docstore.Trip(id))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("store.TripStore.Get: %w", err)
	}
	trip, ok := ingest.One[domain.Trip](s.pipeline, schema.KindTrip, id, ingest.WithID(snap))
	if !ok {
		return domain.Trip{}, fmt.Errorf("store.TripStore.Get %s: invalid document: %w", id, domain.ErrNotFound)
	}
	return trip, nil
}

// Create stores a new trip owned by the caller and returns its id. The
// client id is dropped; userId, createdAt and updatedAt are stamped; days is
// derived from the date span and status defaults to upcoming.
func (s *TripStore) Create(ctx context.Context, payload map[string]any) (string, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return "", fmt.Errorf("store.TripStore.Create: %w", err)
	}

	doc := cleanCreate(payload)
	doc["userId"] = id.OwnerID()
	doc["updatedAt"] = docstore.ServerTimestamp
	if _, ok := doc["status"]; !ok {
		doc["status"] = string(domain.TripUpcoming)
	}
	start, _ := doc["startDate"].(string)
	end, _ := doc["endDate"].(string)
	if n := domain.SpanDays(start, end); n > 0 {
		doc["days"] = n
	}

	probe := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != "createdAt" && k != "updatedAt" {
			probe[k] = v
		}
	}
	if err := check[domain.Trip](schema.KindTrip, probe); err != nil {
		return "", fmt.Errorf("store.TripStore.Create: %w", err)
	}

	newID, err := s.ds.Create(ctx, docstore.CollectionTrips, doc)
	if err != nil {
		return "", fmt.Errorf("store.TripStore.Create: %w", err)
	}
	return newID, nil
}

// Update patches a trip and stamps updatedAt. id, userId and createdAt are
// never written; the merged document is not re-validated. A patch that moves
// startDate or endDate also rewrites days from the resulting span.
func (s *TripStore) Update(ctx context.Context, id string, patch map[string]any) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.TripStore.Update: %w", err)
	}
	doc := cleanPatch(patch, "userId")
	doc["updatedAt"] = docstore.ServerTimestamp

	var pre []docstore.Precondition
	start, hasStart := doc["startDate"].(string)
	end, hasEnd := doc["endDate"].(string)
	if hasStart || hasEnd {
		if !hasStart || !hasEnd {
			// The other end of the span comes from the stored trip, which
			// must not move before the patch lands.
			snap, err := s.ds.Get(ctx, docstore.Trip(id))
			if err != nil {
				return fmt.Errorf("store.TripStore.Update: %w", err)
			}
			if !hasStart {
				start, _ = snap.Data["startDate"].(string)
			}
			if !hasEnd {
				end, _ = snap.Data["endDate"].(string)
			}
			pre = append(pre, docstore.IfVersion(snap.Version))
		}
		if n := domain.SpanDays(start, end); n > 0 {
			doc["days"] = n
		}
	}

	if err := s.ds.Update(ctx, docstore.Trip(id), doc, pre...); err != nil {
		return fmt.Errorf("store.TripStore.Update: %w", err)
	}
	return nil
}

// Delete removes a trip after clearing all its child resources. Every step
// tolerates already-deleted data, so a failed delete can simply be retried.
func (s *TripStore) Delete(ctx context.Context, id string) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.TripStore.Delete: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.children {
		g.Go(func() error {
			if err := c.DeleteAll(gctx, id); err != nil {
				return fmt.Errorf("%s: %w", c.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("store.TripStore.Delete: children: %w", err)
	}
	if err := s.ds.Delete(ctx, docstore.Trip(id)); err != nil {
		return fmt.Errorf("store.TripStore.Delete: %w", err)
	}
	return nil
}

// UpsertBooking inserts or replaces a booking in the trip's bookings array
// and returns the booking id.
func (s *TripStore) UpsertBooking(ctx context.Context, tripID string, booking map[string]any) (string, error) {
	if _, err := auth.Require(ctx); err != nil {
		return "", fmt.Errorf("store.TripStore.UpsertBooking: %w", err)
	}
	if err := check[domain.Booking](schema.KindBooking, booking); err != nil {
		return "", fmt.Errorf("store.TripStore.UpsertBooking: %w", err)
	}
	id, err := UpsertElement(ctx, s.ds, docstore.Trip(tripID), fieldBookings, booking)
	if err != nil {
		return "", fmt.Errorf("store.TripStore.UpsertBooking: %w", err)
	}
	return id, nil
}

// DeleteBooking removes a booking from the trip.
func (s *TripStore) DeleteBooking(ctx context.Context, tripID, bookingID string) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.TripStore.DeleteBooking: %w", err)
	}
	if err := RemoveElement(ctx, s.ds, docstore.Trip(tripID), fieldBookings, bookingID); err != nil {
		return fmt.Errorf("store.TripStore.DeleteBooking: %w", err)
	}
	return nil
}

// UpsertChecklistItem inserts or replaces a preparation item. A new item
// (no id) always starts not completed.
func (s *TripStore) UpsertChecklistItem(ctx context.Context, tripID string, item map[string]any) (string, error) {
	if _, err := auth.Require(ctx); err != nil {
		return "", fmt.Errorf("store.TripStore.UpsertChecklistItem: %w", err)
	}
	if id, _ := item["id"].(string); id == "" {
		item = copyMap(item)
		item["isCompleted"] = false
	}
	if err := check[domain.ChecklistItem](schema.KindChecklistItem, item); err != nil {
		return "", fmt.Errorf("store.TripStore.UpsertChecklistItem: %w", err)
	}
	id, err := UpsertElement(ctx, s.ds, docstore.Trip(tripID), fieldPreparation, item)
	if err != nil {
		return "", fmt.Errorf("store.TripStore.UpsertChecklistItem: %w", err)
	}
	return id, nil
}

// DeleteChecklistItem removes a preparation item.
func (s *TripStore) DeleteChecklistItem(ctx context.Context, tripID, itemID string) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.TripStore.DeleteChecklistItem: %w", err)
	}
	if err := RemoveElement(ctx, s.ds, docstore.Trip(tripID), fieldPreparation, itemID); err != nil {
		return fmt.Errorf("store.TripStore.DeleteChecklistItem: %w", err)
	}
	return nil
}

// ToggleChecklistItem flips isCompleted on one preparation item, leaving
// every other element and field as stored.
func (s *TripStore) ToggleChecklistItem(ctx context.Context, tripID, itemID string) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.TripStore.ToggleChecklistItem: %w", err)
	}
	err := MapElement(ctx, s.ds, docstore.Trip(tripID), fieldPreparation, itemID, func(elem map[string]any) map[string]any {
		done, _ := elem["isCompleted"].(bool)
		elem["isCompleted"] = !done
		return elem
	})
	if err != nil {
		return fmt.Errorf("store.TripStore.ToggleChecklistItem: %w", err)
	}
	return nil
}
