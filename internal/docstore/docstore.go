// Package docstore defines the remote document store the sync core is built
// on: hierarchical document paths, one-shot reads, filtered and ordered
// queries, live queries, and field-patch writes with optional version
// preconditions.
//
// Backends live in sub-packages (memory, postgres, sqlite, mongo, badger).
// All of them share the Hub for live-query fan-out and the query helpers in
// this package, so ordering and delivery semantics are identical everywhere.
package docstore

import (
	"context"
	"time"
)

// Document is the schema-less body of a stored document. Values are the
// shapes produced by encoding/json (string, float64, bool, nil, []any,
// map[string]any) plus whatever a caller wrote directly.
type Document = map[string]any

// Snapshot is one read of a document.
type Snapshot struct {
	ID         string
	Path       Path
	Data       Document
	Version    int64
	Exists     bool
	CreateTime time.Time
	UpdateTime time.Time
}

// Unsubscribe stops a live query. Calling it more than once is a no-op.
type Unsubscribe func()

// Store is the capability set the sync core consumes.
//
// Versions start at 1 when a document is created and increase by one on
// every write. Get returns domain.ErrNotFound for a missing document.
// Update returns domain.ErrNotFound when the document is missing and
// domain.ErrConflict when a precondition does not hold. Delete of a missing
// document succeeds.
type Store interface {
	Get(ctx context.Context, path Path) (Snapshot, error)
	Query(ctx context.Context, q Query) ([]Snapshot, error)

	// Listen delivers the result of q once after registration and again
	// whenever it changes. Callbacks for one listener run sequentially, in
	// the order the changes were observed.
	Listen(ctx context.Context, q Query, onSnap func([]Snapshot), onErr func(error)) (Unsubscribe, error)

	// ListenDoc is Listen for a single document. A missing document is
	// delivered as a Snapshot with Exists == false.
	ListenDoc(ctx context.Context, path Path, onSnap func(Snapshot), onErr func(error)) (Unsubscribe, error)

	// Create stores data under a generated id in collection and returns the id.
	Create(ctx context.Context, collection string, data Document) (string, error)

	// Set creates or replaces the document at path. With IfAbsent it only
	// creates, failing with domain.ErrConflict if the document exists.
	Set(ctx context.Context, path Path, data Document, pre ...Precondition) error

	// Update replaces the top-level fields named in patch, leaving the rest
	// of the document untouched.
	Update(ctx context.Context, path Path, patch Document, pre ...Precondition) error

	Delete(ctx context.Context, path Path) error

	Close() error
}

// Precondition guards a write.
type Precondition struct {
	version int64
	absent  bool
}

// IfVersion makes the write fail with domain.ErrConflict unless the stored
// document is still at version v.
func IfVersion(v int64) Precondition {
	return Precondition{version: v}
}

// IfAbsent makes a Set fail with domain.ErrConflict if the document already
// exists.
func IfAbsent() Precondition {
	return Precondition{absent: true}
}

// RequiresAbsent reports whether pre carries IfAbsent.
func RequiresAbsent(pre []Precondition) bool {
	for _, p := range pre {
		if p.absent {
			return true
		}
	}
	return false
}

// RequiredVersion returns the version demanded by pre, or 0 if none.
func RequiredVersion(pre []Precondition) int64 {
	var v int64
	for _, p := range pre {
		if p.version != 0 {
			v = p.version
		}
	}
	return v
}
