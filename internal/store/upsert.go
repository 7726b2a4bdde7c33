package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/metrics"
)

// UpsertElement inserts or replaces one element of the array field of the
// parent document, matching by "id". An element without an id gets a fresh
// one. The whole array is written back as a single field patch guarded by
// the parent's version, so a concurrent writer makes the call fail with
// domain.ErrConflict instead of silently losing that writer's change.
//
// It returns the id of the stored element.
func UpsertElement(ctx context.Context, ds docstore.Store, parent docstore.Path, field string, item map[string]any) (string, error) {
	var id string
	err := rewriteArray(ctx, ds, parent, field, func(arr []any) ([]any, error) {
		var out []any
		out, id = upsertInto(arr, item)
		return out, nil
	})
	if err != nil {
		return "", fmt.Errorf("store.UpsertElement %s.%s: %w", parent, field, err)
	}
	return id, nil
}

// RemoveElement drops every element of the array whose id is id. Removing
// an id that is not present still rewrites the array unchanged.
func RemoveElement(ctx context.Context, ds docstore.Store, parent docstore.Path, field, id string) error {
	err := rewriteArray(ctx, ds, parent, field, func(arr []any) ([]any, error) {
		return removeFrom(arr, id), nil
	})
	if err != nil {
		return fmt.Errorf("store.RemoveElement %s.%s: %w", parent, field, err)
	}
	return nil
}

// MapElement replaces the element whose id is id with fn applied to a copy
// of it. Other elements are written back exactly as read. It returns
// domain.ErrNotFound when no element has that id.
func MapElement(ctx context.Context, ds docstore.Store, parent docstore.Path, field, id string, fn func(elem map[string]any) map[string]any) error {
	err := rewriteArray(ctx, ds, parent, field, func(arr []any) ([]any, error) {
		i := indexOf(arr, id)
		if i < 0 {
			return nil, fmt.Errorf("element %s: %w", id, domain.ErrNotFound)
		}
		elem, _ := arr[i].(map[string]any)
		arr[i] = fn(copyMap(elem))
		return arr, nil
	})
	if err != nil {
		return fmt.Errorf("store.MapElement %s.%s: %w", parent, field, err)
	}
	return nil
}

// rewriteArray reads parent, hands fn a private copy of the array field and
// writes the result back under a version precondition.
func rewriteArray(ctx context.Context, ds docstore.Store, parent docstore.Path, field string, fn func(arr []any) ([]any, error)) error {
	snap, err := ds.Get(ctx, parent)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrParentNotFound
	}
	if err != nil {
		return err
	}

	arr, err := fn(arrayField(snap.Data, field))
	if err != nil {
		return err
	}

	err = ds.Update(ctx, parent, docstore.Document{field: arr}, docstore.IfVersion(snap.Version))
	switch {
	case errors.Is(err, domain.ErrConflict):
		metrics.UpsertConflicts.WithLabelValues(field).Inc()
		return err
	case errors.Is(err, domain.ErrNotFound):
		// Deleted between the read and the write.
		return domain.ErrParentNotFound
	}
	return err
}

// arrayField returns a shallow copy of doc[field] as a slice. A missing or
// non-array field yields an empty slice.
func arrayField(doc docstore.Document, field string) []any {
	src, _ := doc[field].([]any)
	out := make([]any, len(src), len(src)+1)
	copy(out, src)
	return out
}

// upsertInto replaces or appends item in arr, assigning an id when item has
// none. arr may be modified; item is not.
func upsertInto(arr []any, item map[string]any) ([]any, string) {
	elem := copyMap(item)
	id, _ := elem["id"].(string)
	if id == "" {
		id = uuid.NewString()
		elem["id"] = id
	}
	if i := indexOf(arr, id); i >= 0 {
		arr[i] = elem
		return arr, id
	}
	return append(arr, elem), id
}

func removeFrom(arr []any, id string) []any {
	if id == "" {
		return arr
	}
	out := arr[:0]
	for _, v := range arr {
		if elemID(v) != id {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(arr []any, id string) int {
	if id == "" {
		return -1
	}
	for i, v := range arr {
		if elemID(v) == id {
			return i
		}
	}
	return -1
}

func elemID(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	return id
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
