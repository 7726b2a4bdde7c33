package store

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

// Layout selects how a trip's child resources are stored.
type Layout string

const (
	// LayoutCollections keeps each child in its own document under
	// trips/{tripId}/{name}/{childId}.
	LayoutCollections Layout = "collections"

	// LayoutEmbedded keeps children as elements of an array field of the
	// trip document.
	LayoutEmbedded Layout = "embedded"
)

// ChildBackend is the access contract for one kind of trip child resource.
// Entity stores are written against it and never look at the layout.
//
// Snapshots returned by a backend carry the child id in ID and the child
// body in Data. Query arguments supply filters and ordering; their
// Collection is ignored.
type ChildBackend interface {
	Name() string
	Listen(ctx context.Context, tripID string, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error)
	List(ctx context.Context, tripID string, q docstore.Query) ([]docstore.Snapshot, error)
	Get(ctx context.Context, tripID, id string) (docstore.Snapshot, error)
	Create(ctx context.Context, tripID string, data docstore.Document) (string, error)
	Update(ctx context.Context, tripID, id string, patch docstore.Document) error

	// Put writes a child under a caller-chosen id, replacing any existing
	// child with that id. Restores use it to keep original ids.
	Put(ctx context.Context, tripID, id string, data docstore.Document) error

	// Insert writes a child under a caller-chosen id only if no child has
	// that id yet; otherwise it fails with domain.ErrConflict.
	Insert(ctx context.Context, tripID, id string, data docstore.Document) error

	// Modify reads one child, passes a copy of its body to fn and writes
	// the returned fields back, failing with domain.ErrConflict if the
	// child changed in between.
	Modify(ctx context.Context, tripID, id string, fn func(doc docstore.Document) (docstore.Document, error)) error

	Delete(ctx context.Context, tripID, id string) error

	// DeleteAll removes every child of the trip. It succeeds when there is
	// nothing left to delete, so an interrupted cascade can be rerun.
	DeleteAll(ctx context.Context, tripID string) error
}

// NewChildBackend returns the backend for the named child collection under
// layout.
func NewChildBackend(ds docstore.Store, layout Layout, name string) (ChildBackend, error) {
	switch layout {
	case LayoutCollections, "":
		return CollectionChildren(ds, name), nil
	case LayoutEmbedded:
		return EmbeddedChildren(ds, name), nil
	}
	return nil, fmt.Errorf("store.NewChildBackend: unknown layout %q", layout)
}

// --- child collections --------------------------------------------------------

type collectionChildren struct {
	ds   docstore.Store
	name string
}

// CollectionChildren stores children as documents in the sub-collection
// trips/{tripId}/{name}.
func CollectionChildren(ds docstore.Store, name string) ChildBackend {
	return &collectionChildren{ds: ds, name: name}
}

func (c *collectionChildren) Name() string { return c.name }

func (c *collectionChildren) scoped(tripID string, q docstore.Query) docstore.Query {
	q.Collection = docstore.ChildCollection(tripID, c.name)
	return q
}

func (c *collectionChildren) Listen(ctx context.Context, tripID string, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	return c.ds.Listen(ctx, c.scoped(tripID, q), onSnap, onErr)
}

func (c *collectionChildren) List(ctx context.Context, tripID string, q docstore.Query) ([]docstore.Snapshot, error) {
	return c.ds.Query(ctx, c.scoped(tripID, q))
}

func (c *collectionChildren) Get(ctx context.Context, tripID, id string) (docstore.Snapshot, error) {
	return c.ds.Get(ctx, docstore.Child(tripID, c.name, id))
}

func (c *collectionChildren) Create(ctx context.Context, tripID string, data docstore.Document) (string, error) {
	return c.ds.Create(ctx, docstore.ChildCollection(tripID, c.name), data)
}

func (c *collectionChildren) Update(ctx context.Context, tripID, id string, patch docstore.Document) error {
	return c.ds.Update(ctx, docstore.Child(tripID, c.name, id), patch)
}

func (c *collectionChildren) Put(ctx context.Context, tripID, id string, data docstore.Document) error {
	body := copyMap(data)
	delete(body, "id")
	return c.ds.Set(ctx, docstore.Child(tripID, c.name, id), body)
}

func (c *collectionChildren) Insert(ctx context.Context, tripID, id string, data docstore.Document) error {
	body := copyMap(data)
	delete(body, "id")
	return c.ds.Set(ctx, docstore.Child(tripID, c.name, id), body, docstore.IfAbsent())
}

func (c *collectionChildren) Modify(ctx context.Context, tripID, id string, fn func(docstore.Document) (docstore.Document, error)) error {
	path := docstore.Child(tripID, c.name, id)
	snap, err := c.ds.Get(ctx, path)
	if err != nil {
		return err
	}
	patch, err := fn(docstore.Clone(snap.Data))
	if err != nil {
		return err
	}
	return c.ds.Update(ctx, path, patch, docstore.IfVersion(snap.Version))
}

func (c *collectionChildren) Delete(ctx context.Context, tripID, id string) error {
	return c.ds.Delete(ctx, docstore.Child(tripID, c.name, id))
}

func (c *collectionChildren) DeleteAll(ctx context.Context, tripID string) error {
	snaps, err := c.List(ctx, tripID, docstore.Query{})
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, s := range snaps {
		g.Go(func() error { return c.ds.Delete(gctx, s.Path) })
	}
	return g.Wait()
}

// --- embedded arrays ----------------------------------------------------------

type embeddedChildren struct {
	ds    docstore.Store
	field string
}

// EmbeddedChildren stores children as elements of the array field of the
// trip document, written through the embedded-array upsert protocol.
func EmbeddedChildren(ds docstore.Store, field string) ChildBackend {
	return &embeddedChildren{ds: ds, field: field}
}

func (e *embeddedChildren) Name() string { return e.field }

// elements turns the array field of a trip snapshot into child snapshots,
// filtered and ordered by q.
func (e *embeddedChildren) elements(trip docstore.Snapshot, q docstore.Query) []docstore.Snapshot {
	arr, _ := trip.Data[e.field].([]any)
	var out []docstore.Snapshot
	for _, v := range arr {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		data := docstore.Clone(m)
		id, _ := data["id"].(string)
		delete(data, "id")
		if !q.Matches(data) {
			continue
		}
		out = append(out, docstore.Snapshot{
			ID:         id,
			Path:       docstore.Child(trip.ID, e.field, id),
			Data:       data,
			Version:    trip.Version,
			Exists:     true,
			CreateTime: trip.CreateTime,
			UpdateTime: trip.UpdateTime,
		})
	}
	return q.Apply(out)
}

func (e *embeddedChildren) Listen(ctx context.Context, tripID string, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	return e.ds.ListenDoc(ctx, docstore.Trip(tripID), func(trip docstore.Snapshot) {
		if !trip.Exists {
			onSnap(nil)
			return
		}
		onSnap(e.elements(trip, q))
	}, onErr)
}

func (e *embeddedChildren) List(ctx context.Context, tripID string, q docstore.Query) ([]docstore.Snapshot, error) {
	trip, err := e.ds.Get(ctx, docstore.Trip(tripID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.elements(trip, q), nil
}

func (e *embeddedChildren) Get(ctx context.Context, tripID, id string) (docstore.Snapshot, error) {
	snaps, err := e.List(ctx, tripID, docstore.Query{})
	if err != nil {
		return docstore.Snapshot{}, err
	}
	for _, s := range snaps {
		if s.ID == id {
			return s, nil
		}
	}
	return docstore.Snapshot{}, fmt.Errorf("%s %s: %w", e.field, id, domain.ErrNotFound)
}

func (e *embeddedChildren) Create(ctx context.Context, tripID string, data docstore.Document) (string, error) {
	item := copyMap(data)
	delete(item, "id")
	return UpsertElement(ctx, e.ds, docstore.Trip(tripID), e.field, item)
}

func (e *embeddedChildren) Update(ctx context.Context, tripID, id string, patch docstore.Document) error {
	return MapElement(ctx, e.ds, docstore.Trip(tripID), e.field, id, func(elem map[string]any) map[string]any {
		for k, v := range patch {
			if k != "id" {
				elem[k] = v
			}
		}
		return elem
	})
}

func (e *embeddedChildren) Put(ctx context.Context, tripID, id string, data docstore.Document) error {
	item := copyMap(data)
	item["id"] = id
	_, err := UpsertElement(ctx, e.ds, docstore.Trip(tripID), e.field, item)
	return err
}

func (e *embeddedChildren) Insert(ctx context.Context, tripID, id string, data docstore.Document) error {
	return rewriteArray(ctx, e.ds, docstore.Trip(tripID), e.field, func(arr []any) ([]any, error) {
		if indexOf(arr, id) >= 0 {
			return nil, fmt.Errorf("%s %s: %w", e.field, id, domain.ErrConflict)
		}
		item := copyMap(data)
		item["id"] = id
		return append(arr, item), nil
	})
}

func (e *embeddedChildren) Modify(ctx context.Context, tripID, id string, fn func(docstore.Document) (docstore.Document, error)) error {
	return rewriteArray(ctx, e.ds, docstore.Trip(tripID), e.field, func(arr []any) ([]any, error) {
		i := indexOf(arr, id)
		if i < 0 {
			return nil, fmt.Errorf("%s %s: %w", e.field, id, domain.ErrNotFound)
		}
		elem, _ := arr[i].(map[string]any)
		body := docstore.Clone(elem)
		delete(body, "id")
		patch, err := fn(body)
		if err != nil {
			return nil, err
		}
		merged := copyMap(elem)
		for k, v := range patch {
			if k != "id" {
				merged[k] = v
			}
		}
		arr[i] = merged
		return arr, nil
	})
}

func (e *embeddedChildren) Delete(ctx context.Context, tripID, id string) error {
	err := RemoveElement(ctx, e.ds, docstore.Trip(tripID), e.field, id)
	if errors.Is(err, domain.ErrParentNotFound) {
		return nil
	}
	return err
}

func (e *embeddedChildren) DeleteAll(ctx context.Context, tripID string) error {
	err := e.ds.Update(ctx, docstore.Trip(tripID), docstore.Document{e.field: []any{}})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
