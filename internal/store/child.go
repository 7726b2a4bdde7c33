package store

import (
	"context"
	"fmt"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/schema"
)

// childStore is the shared implementation of the stores whose entities are
// trip children. The scope of every operation is the trip id.
type childStore[T any] struct {
	liveView[T]

	children ChildBackend
	pipeline *ingest.Pipeline
	kind     schema.Kind
	order    docstore.Query
	label    string
}

// prepare shapes a child snapshot for validation: the document id becomes
// "id" and the owning trip "tripId".
func (s *childStore[T]) prepare(tripID string) func(docstore.Snapshot) map[string]any {
	return func(snap docstore.Snapshot) map[string]any {
		m := ingest.WithID(snap)
		if _, ok := m["tripId"]; !ok {
			m["tripId"] = tripID
		}
		return m
	}
}

// Subscribe streams the trip's children, validated and ordered, to
// onChange and into View. Without an identity in ctx it is a no-op.
func (s *childStore[T]) Subscribe(ctx context.Context, tripID string, onChange func([]T)) docstore.Unsubscribe {
	listen := func(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
		return s.children.Listen(ctx, tripID, q, onSnap, onErr)
	}
	return subscribe(ctx, &s.liveView, s.pipeline, s.kind, listen, s.order, s.prepare(tripID), onChange)
}

// List is a one-shot read of the trip's children, validated and ordered.
func (s *childStore[T]) List(ctx context.Context, tripID string) ([]T, error) {
	snaps, err := s.children.List(ctx, tripID, s.order)
	if err != nil {
		return nil, fmt.Errorf("store.%s.List: %w", s.label, err)
	}
	return ingest.FilterValid[T](s.pipeline, s.kind, snaps, s.prepare(tripID)), nil
}

// Get returns one child. A child that exists but fails validation is
// reported as domain.ErrNotFound, as it would be absent from any list.
func (s *childStore[T]) Get(ctx context.Context, tripID, id string) (T, error) {
	var zero T
	snap, err := s.children.Get(ctx, tripID, id)
	if err != nil {
		return zero, fmt.Errorf("store.%s.Get: %w", s.label, err)
	}
	v, ok := ingest.One[T](s.pipeline, s.kind, id, s.prepare(tripID)(snap))
	if !ok {
		return zero, fmt.Errorf("store.%s.Get %s: invalid document: %w", s.label, id, domain.ErrNotFound)
	}
	return v, nil
}

// Create validates payload, strips its id, stamps createdAt and stores it
// under the trip. It returns the new id.
func (s *childStore[T]) Create(ctx context.Context, tripID string, payload map[string]any) (string, error) {
	if _, err := auth.Require(ctx); err != nil {
		return "", fmt.Errorf("store.%s.Create: %w", s.label, err)
	}
	if err := check[T](s.kind, s.withTrip(tripID, payload)); err != nil {
		return "", fmt.Errorf("store.%s.Create: %w", s.label, err)
	}
	id, err := s.children.Create(ctx, tripID, cleanCreate(payload))
	if err != nil {
		return "", fmt.Errorf("store.%s.Create: %w", s.label, err)
	}
	return id, nil
}

// Update patches the named fields of one child. id and createdAt are never
// written; the merged document is not re-validated.
func (s *childStore[T]) Update(ctx context.Context, tripID, id string, patch map[string]any) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.%s.Update: %w", s.label, err)
	}
	if err := s.children.Update(ctx, tripID, id, cleanPatch(patch)); err != nil {
		return fmt.Errorf("store.%s.Update: %w", s.label, err)
	}
	return nil
}

// Delete removes one child. Deleting a missing child succeeds.
func (s *childStore[T]) Delete(ctx context.Context, tripID, id string) error {
	if _, err := auth.Require(ctx); err != nil {
		return fmt.Errorf("store.%s.Delete: %w", s.label, err)
	}
	if err := s.children.Delete(ctx, tripID, id); err != nil {
		return fmt.Errorf("store.%s.Delete: %w", s.label, err)
	}
	return nil
}

func (s *childStore[T]) withTrip(tripID string, payload map[string]any) map[string]any {
	m := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		m[k] = v
	}
	if _, ok := m["tripId"]; !ok {
		m["tripId"] = tripID
	}
	return m
}

// ExpenseStore manages a trip's shared expenses, newest date first.
type ExpenseStore struct {
	childStore[domain.Expense]
}

// NewExpenseStore returns an ExpenseStore over children.
func NewExpenseStore(children ChildBackend, p *ingest.Pipeline) *ExpenseStore {
	return &ExpenseStore{childStore[domain.Expense]{
		children: children,
		pipeline: p,
		kind:     schema.KindExpense,
		order:    docstore.Query{OrderBy: "date", Desc: true},
		label:    "ExpenseStore",
	}}
}

// CollectionStore manages a trip's research collections, newest first.
type CollectionStore struct {
	childStore[domain.Collection]
}

// NewCollectionStore returns a CollectionStore over children.
func NewCollectionStore(children ChildBackend, p *ingest.Pipeline) *CollectionStore {
	return &CollectionStore{childStore[domain.Collection]{
		children: children,
		pipeline: p,
		kind:     schema.KindCollection,
		order:    docstore.Query{OrderBy: "createdAt", Desc: true},
		label:    "CollectionStore",
	}}
}

// Create stores a research collection. Tags are sanitised before writing so
// the stored document matches what readers see.
func (s *CollectionStore) Create(ctx context.Context, tripID string, payload map[string]any) (string, error) {
	return s.childStore.Create(ctx, tripID, sanitizeTagsField(payload))
}

// Update patches a research collection, sanitising tags when present.
func (s *CollectionStore) Update(ctx context.Context, tripID, id string, patch map[string]any) error {
	return s.childStore.Update(ctx, tripID, id, sanitizeTagsField(patch))
}

func sanitizeTagsField(m map[string]any) map[string]any {
	raw, ok := m["tags"].([]any)
	if !ok {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	tags := domain.SanitizeTags(raw)
	clean := make([]any, len(tags))
	for i, t := range tags {
		clean[i] = t
	}
	out["tags"] = clean
	return out
}
