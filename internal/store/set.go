package store

import (
	"context"
	"fmt"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
)

// Backends are the child backends of one layout.
type Backends struct {
	Plans       ChildBackend
	Expenses    ChildBackend
	Collections ChildBackend
}

// Set bundles the entity stores over one document store and child layout.
// Its stores serve one-shot reads and writes; the Subscribe methods start
// each feed on a fresh store so concurrent feeds never share a live view.
type Set struct {
	Trips       *TripStore
	Plans       *PlanStore
	Expenses    *ExpenseStore
	Collections *CollectionStore
	Backends    Backends

	ds       docstore.Store
	pipeline *ingest.Pipeline
}

// NewSet builds every store over ds with children stored under layout.
func NewSet(ds docstore.Store, layout Layout, p *ingest.Pipeline) (*Set, error) {
	var b Backends
	for _, c := range []struct {
		name string
		dst  *ChildBackend
	}{
		{docstore.CollectionPlans, &b.Plans},
		{docstore.CollectionExpenses, &b.Expenses},
		{docstore.CollectionCollections, &b.Collections},
	} {
		backend, err := NewChildBackend(ds, layout, c.name)
		if err != nil {
			return nil, fmt.Errorf("store.NewSet: %w", err)
		}
		*c.dst = backend
	}
	return &Set{
		Trips:       NewTripStore(ds, p, b.Plans, b.Expenses, b.Collections),
		Plans:       NewPlanStore(b.Plans, p),
		Expenses:    NewExpenseStore(b.Expenses, p),
		Collections: NewCollectionStore(b.Collections, p),
		Backends:    b,
		ds:          ds,
		pipeline:    p,
	}, nil
}

// SubscribeTrips streams all trips on a store of its own.
func (s *Set) SubscribeTrips(ctx context.Context, onChange func([]domain.Trip)) docstore.Unsubscribe {
	return NewTripStore(s.ds, s.pipeline).Subscribe(ctx, onChange)
}

// SubscribePlans streams one trip's daily plans on a store of its own.
func (s *Set) SubscribePlans(ctx context.Context, tripID string, onChange func([]domain.DailyPlan)) docstore.Unsubscribe {
	return NewPlanStore(s.Backends.Plans, s.pipeline).Subscribe(ctx, tripID, onChange)
}

// SubscribeExpenses streams one trip's expenses on a store of its own.
func (s *Set) SubscribeExpenses(ctx context.Context, tripID string, onChange func([]domain.Expense)) docstore.Unsubscribe {
	return NewExpenseStore(s.Backends.Expenses, s.pipeline).Subscribe(ctx, tripID, onChange)
}

// SubscribeCollections streams one trip's research collections on a store
// of its own.
func (s *Set) SubscribeCollections(ctx context.Context, tripID string, onChange func([]domain.Collection)) docstore.Unsubscribe {
	return NewCollectionStore(s.Backends.Collections, s.pipeline).Subscribe(ctx, tripID, onChange)
}
