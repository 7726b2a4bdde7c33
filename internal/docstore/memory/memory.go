// Package memory is an in-process docstore backend. Documents are held as
// canonical JSON-shaped values and deep-copied on every read and write, so
// callers can never alias stored state. It backs unit tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

type record struct {
	data    docstore.Document
	version int64
	created time.Time
	updated time.Time
}

// Store is the in-memory docstore.Store implementation.
type Store struct {
	hub *docstore.Hub
	now func() time.Time

	mu   sync.RWMutex
	docs map[docstore.Path]record
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		hub:  docstore.NewHub(log),
		now:  time.Now,
		docs: make(map[docstore.Path]record),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Hub exposes the change fan-out, mainly so tests can observe listeners.
func (s *Store) Hub() *docstore.Hub { return s.hub }

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Snapshot, error) {
	if err := path.Validate(); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("memory.Store.Get: %w", err)
	}
	s.mu.RLock()
	rec, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return docstore.Snapshot{}, fmt.Errorf("memory.Store.Get %s: %w", path, domain.ErrNotFound)
	}
	return snapshot(path, rec), nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("memory.Store.Query: %w", err)
	}
	s.mu.RLock()
	var out []docstore.Snapshot
	for p, rec := range s.docs {
		if p.InCollection(q.Collection) && q.Matches(rec.data) {
			out = append(out, snapshot(p, rec))
		}
	}
	s.mu.RUnlock()
	return q.Apply(out), nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("memory.Store.Listen: %w", err)
	}
	return s.hub.WatchQuery(ctx, q, s.Query, onSnap, onErr), nil
}

func (s *Store) ListenDoc(ctx context.Context, path docstore.Path, onSnap func(docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("memory.Store.ListenDoc: %w", err)
	}
	return s.hub.WatchDoc(ctx, path, s.Get, onSnap, onErr), nil
}

func (s *Store) Create(ctx context.Context, collection string, data docstore.Document) (string, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", fmt.Errorf("memory.Store.Create: %w", err)
	}
	now := s.now().UTC()
	doc, err := docstore.Canonical(data, now)
	if err != nil {
		return "", fmt.Errorf("memory.Store.Create: %w", err)
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.docs[docstore.Doc(collection, id)] = record{data: doc, version: 1, created: now, updated: now}
	s.mu.Unlock()
	s.hub.Publish(collection)
	return id, nil
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("memory.Store.Set: %w", err)
	}
	now := s.now().UTC()
	doc, err := docstore.Canonical(data, now)
	if err != nil {
		return fmt.Errorf("memory.Store.Set: %w", err)
	}
	s.mu.Lock()
	rec, ok := s.docs[path]
	if ok && docstore.RequiresAbsent(pre) {
		s.mu.Unlock()
		return fmt.Errorf("memory.Store.Set %s: %w", path, domain.ErrConflict)
	}
	if ok {
		rec = record{data: doc, version: rec.version + 1, created: rec.created, updated: now}
	} else {
		rec = record{data: doc, version: 1, created: now, updated: now}
	}
	s.docs[path] = rec
	s.mu.Unlock()
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, patch docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("memory.Store.Update: %w", err)
	}
	now := s.now().UTC()
	canon, err := docstore.Canonical(patch, now)
	if err != nil {
		return fmt.Errorf("memory.Store.Update: %w", err)
	}

	s.mu.Lock()
	rec, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("memory.Store.Update %s: %w", path, domain.ErrNotFound)
	}
	if want := docstore.RequiredVersion(pre); want != 0 && want != rec.version {
		s.mu.Unlock()
		return fmt.Errorf("memory.Store.Update %s: have version %d, want %d: %w", path, rec.version, want, domain.ErrConflict)
	}
	rec.data = docstore.Merge(rec.data, canon)
	rec.version++
	rec.updated = now
	s.docs[path] = rec
	s.mu.Unlock()

	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("memory.Store.Delete: %w", err)
	}
	s.mu.Lock()
	_, ok := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()
	if ok {
		s.hub.Publish(path.Collection())
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Paths returns every stored path with the given prefix, sorted. Tests use
// it to assert cascade deletes.
func (s *Store) Paths(prefix string) []docstore.Path {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []docstore.Path
	for p := range s.docs {
		if strings.HasPrefix(string(p), prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func snapshot(p docstore.Path, rec record) docstore.Snapshot {
	return docstore.Snapshot{
		ID:         p.ID(),
		Path:       p,
		Data:       docstore.Clone(rec.data),
		Version:    rec.version,
		Exists:     true,
		CreateTime: rec.created,
		UpdateTime: rec.updated,
	}
}
