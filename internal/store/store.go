// Package store holds the entity stores of the sync core: trips and their
// daily plans, expenses and research collections. Each store keeps a live,
// validated view of the collection it last subscribed to and performs CRUD
// against the document store on behalf of the authenticated identity in
// the request context.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/schema"
)

// liveView is the reactive cache of one store. Only the owning store writes
// to it; readers get copies.
type liveView[T any] struct {
	mu      sync.RWMutex
	items   []T
	err     error
	loading bool
}

// View returns a copy of the most recently delivered collection.
func (v *liveView[T]) View() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

// Err returns the last subscription error. Data delivered before the error
// stays in View.
func (v *liveView[T]) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Loading reports whether a subscription has started but not yet delivered.
func (v *liveView[T]) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

func (v *liveView[T]) begin() {
	v.mu.Lock()
	v.loading = true
	v.mu.Unlock()
}

func (v *liveView[T]) set(items []T) {
	v.mu.Lock()
	v.items = items
	v.loading = false
	v.mu.Unlock()
}

func (v *liveView[T]) fail(err error) {
	v.mu.Lock()
	v.err = err
	v.loading = false
	v.mu.Unlock()
}

// update replaces the cached item for which match is true, or appends it.
func (v *liveView[T]) update(item T, match func(T) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.items {
		if match(v.items[i]) {
			v.items[i] = item
			return
		}
	}
	v.items = append(v.items, item)
}

func noop() {}

// listenFunc starts a live query; it is either docstore.Store.Listen or a
// ChildBackend.Listen bound to a trip.
type listenFunc func(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error)

// subscribe wires a live query through the ingestion pipeline into view
// and onChange. Without an identity in ctx it returns a no-op and never
// touches the document store.
func subscribe[T any](
	ctx context.Context,
	view *liveView[T],
	p *ingest.Pipeline,
	kind schema.Kind,
	listen listenFunc,
	q docstore.Query,
	prepare func(docstore.Snapshot) map[string]any,
	onChange func([]T),
) docstore.Unsubscribe {
	if _, ok := auth.FromContext(ctx); !ok {
		return noop
	}
	view.begin()
	unsub, err := listen(ctx, q, func(snaps []docstore.Snapshot) {
		items := ingest.FilterValid[T](p, kind, snaps, prepare)
		view.set(items)
		if onChange != nil {
			out := make([]T, len(items))
			copy(out, items)
			onChange(out)
		}
	}, view.fail)
	if err != nil {
		view.fail(err)
		return noop
	}
	return unsub
}

// cleanCreate copies a create payload without its client-side id and
// stamps the creation time.
func cleanCreate(payload map[string]any) docstore.Document {
	doc := make(docstore.Document, len(payload)+1)
	for k, v := range payload {
		if k != "id" {
			doc[k] = v
		}
	}
	doc["createdAt"] = docstore.ServerTimestamp
	return doc
}

// cleanPatch copies an update payload without the fields a client may never
// change.
func cleanPatch(patch map[string]any, immutable ...string) docstore.Document {
	doc := make(docstore.Document, len(patch))
outer:
	for k, v := range patch {
		if k == "id" || k == "createdAt" {
			continue
		}
		for _, f := range immutable {
			if k == f {
				continue outer
			}
		}
		doc[k] = v
	}
	return doc
}

// check validates a payload about to be created as kind. The id and the
// creation time are filled with stand-ins since the store assigns both.
func check[T any](kind schema.Kind, payload map[string]any) error {
	m := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		m[k] = v
	}
	if id, _ := m["id"].(string); id == "" {
		m["id"] = "pending"
	}
	m["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return schema.Validate[T](kind, m).Err()
}
