package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/schema"
)

const fieldActivities = "activities"

// PlanStore manages a trip's daily plans, earliest date first. There is at
// most one plan per date; activities are an embedded array inside it.
type PlanStore struct {
	childStore[domain.DailyPlan]
}

// NewPlanStore returns a PlanStore over children.
func NewPlanStore(children ChildBackend, p *ingest.Pipeline) *PlanStore {
	return &PlanStore{childStore[domain.DailyPlan]{
		children: children,
		pipeline: p,
		kind:     schema.KindDailyPlan,
		order:    docstore.Query{OrderBy: "date"},
		label:    "PlanStore",
	}}
}

// GetOrCreate looks up the plan for date. When none is stored it returns a
// nil id and an empty, unsaved plan for that date.
func (s *PlanStore) GetOrCreate(ctx context.Context, tripID, date string) (*string, domain.DailyPlan, error) {
	snap, ok, err := s.find(ctx, tripID, date)
	if err != nil {
		return nil, domain.DailyPlan{}, fmt.Errorf("store.PlanStore.GetOrCreate: %w", err)
	}
	if !ok {
		return nil, domain.DailyPlan{TripID: tripID, Date: date, Activities: []domain.Activity{}}, nil
	}
	id := snap.ID
	plan, valid := ingest.One[domain.DailyPlan](s.pipeline, s.kind, id, s.prepare(tripID)(snap))
	if !valid {
		plan = domain.DailyPlan{ID: id, TripID: tripID, Date: date, Activities: []domain.Activity{}}
	}
	return &id, plan, nil
}

// planWriteAttempts bounds how often UpsertActivity retries after losing a
// race with another writer on the same day.
const planWriteAttempts = 3

// UpsertActivity inserts or replaces activity in the plan for date,
// creating the plan when the day has none. A new plan is stored under the
// date as its id, so concurrent first writes to one day cannot create two
// plans. It returns the activity id.
func (s *PlanStore) UpsertActivity(ctx context.Context, tripID, date string, activity map[string]any) (string, error) {
	if _, err := auth.Require(ctx); err != nil {
		return "", fmt.Errorf("store.PlanStore.UpsertActivity: %w", err)
	}
	if err := check[domain.Activity](schema.KindActivity, activity); err != nil {
		return "", fmt.Errorf("store.PlanStore.UpsertActivity: %w", err)
	}

	var (
		id  string
		err error
	)
	for range planWriteAttempts {
		id, err = s.upsertActivity(ctx, tripID, date, activity)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("store.PlanStore.UpsertActivity: %w", err)
	}
	return id, nil
}

func (s *PlanStore) upsertActivity(ctx context.Context, tripID, date string, activity map[string]any) (string, error) {
	snap, ok, err := s.find(ctx, tripID, date)
	if err != nil {
		return "", err
	}
	if !ok {
		activities, id := upsertInto(nil, activity)
		err := s.children.Insert(ctx, tripID, date, docstore.Document{
			"tripId":        tripID,
			"date":          date,
			fieldActivities: activities,
		})
		if err != nil {
			return "", fmt.Errorf("create plan: %w", err)
		}
		return id, nil
	}

	var id string
	err = s.children.Modify(ctx, tripID, snap.ID, func(doc docstore.Document) (docstore.Document, error) {
		var activities []any
		activities, id = upsertInto(arrayField(doc, fieldActivities), activity)
		return docstore.Document{fieldActivities: activities}, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteActivity removes an activity from the plan for date. A day without a
// plan is left untouched.
func (s *PlanStore) DeleteActivity(ctx context.Context, tripID, date, activityID string) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.PlanStore.DeleteActivity: %w", err)
	}
	snap, ok, err := s.find(ctx, tripID, date)
	if err != nil {
		return fmt.Errorf("store.PlanStore.DeleteActivity: %w", err)
	}
	if !ok {
		return nil
	}
	err = s.children.Modify(ctx, tripID, snap.ID, func(doc docstore.Document) (docstore.Document, error) {
		return docstore.Document{fieldActivities: removeFrom(arrayField(doc, fieldActivities), activityID)}, nil
	})
	if err != nil {
		return fmt.Errorf("store.PlanStore.DeleteActivity: %w", err)
	}
	return nil
}

// find returns the stored plan for date, if any.
func (s *PlanStore) find(ctx context.Context, tripID, date string) (docstore.Snapshot, bool, error) {
	snaps, err := s.children.List(ctx, tripID, docstore.Query{Limit: 1}.WhereEq("date", date))
	if err != nil {
		return docstore.Snapshot{}, false, err
	}
	if len(snaps) == 0 {
		return docstore.Snapshot{}, false, nil
	}
	return snaps[0], true, nil
}
