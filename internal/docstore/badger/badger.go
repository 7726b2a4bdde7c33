// Package badger stores documents in an embedded BadgerDB, keyed by document
// path. It needs no external service, so it backs single-binary deployments
// and offline tripctl runs; live queries observe writes made through the
// same Store.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

const (
	keyPrefix = "doc/"

	// maxTxnRetries bounds retries of a write that lost a badger
	// optimistic-concurrency race. Version preconditions are checked inside
	// the transaction and are never retried.
	maxTxnRetries = 5
)

// Config selects where the database lives.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger
}

// record is the stored value for one document.
type record struct {
	Data    json.RawMessage `json:"data"`
	Version int64           `json:"version"`
	Created time.Time       `json:"created"`
	Updated time.Time       `json:"updated"`
}

// Store is the BadgerDB docstore.Store implementation.
type Store struct {
	db  *badger.DB
	hub *docstore.Hub
	now func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the database described by cfg. log is used for live-query
// diagnostics.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger.Open: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badger.Open: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger.Open: %w", err)
	}
	return &Store{db: db, hub: docstore.NewHub(log), now: time.Now}, nil
}

func key(p docstore.Path) []byte { return []byte(keyPrefix + string(p)) }

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Snapshot, error) {
	if err := path.Validate(); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("badger.Store.Get: %w", err)
	}
	var snap docstore.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := load(txn, path)
		if err != nil {
			return err
		}
		snap, err = toSnapshot(path, rec)
		return err
	})
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("badger.Store.Get %s: %w", path, err)
	}
	return snap, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("badger.Store.Query: %w", err)
	}
	prefix := []byte(keyPrefix + q.Collection + "/")

	var out []docstore.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			path := docstore.Path(string(item.Key()[len(keyPrefix):]))
			if !path.InCollection(q.Collection) {
				continue
			}
			var rec record
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			snap, err := toSnapshot(path, rec)
			if err != nil {
				return err
			}
			if q.Matches(snap.Data) {
				out = append(out, snap)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger.Store.Query: %w", err)
	}
	return q.Apply(out), nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("badger.Store.Listen: %w", err)
	}
	return s.hub.WatchQuery(ctx, q, s.Query, onSnap, onErr), nil
}

func (s *Store) ListenDoc(ctx context.Context, path docstore.Path, onSnap func(docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("badger.Store.ListenDoc: %w", err)
	}
	return s.hub.WatchDoc(ctx, path, s.Get, onSnap, onErr), nil
}

func (s *Store) Create(ctx context.Context, collection string, data docstore.Document) (string, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", fmt.Errorf("badger.Store.Create: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(data, now)
	if err != nil {
		return "", fmt.Errorf("badger.Store.Create: %w", err)
	}
	id := uuid.NewString()
	err = s.write(ctx, func(txn *badger.Txn) error {
		return store(txn, docstore.Doc(collection, id), record{Data: body, Version: 1, Created: now, Updated: now})
	})
	if err != nil {
		return "", fmt.Errorf("badger.Store.Create: %w", err)
	}
	s.hub.Publish(collection)
	return id, nil
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("badger.Store.Set: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(data, now)
	if err != nil {
		return fmt.Errorf("badger.Store.Set: %w", err)
	}
	err = s.write(ctx, func(txn *badger.Txn) error {
		rec := record{Data: body, Version: 1, Created: now, Updated: now}
		prev, err := load(txn, path)
		switch {
		case err == nil && docstore.RequiresAbsent(pre):
			return domain.ErrConflict
		case err == nil:
			rec.Version = prev.Version + 1
			rec.Created = prev.Created
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		return store(txn, path, rec)
	})
	if err != nil {
		return fmt.Errorf("badger.Store.Set: %w", err)
	}
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, patch docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("badger.Store.Update: %w", err)
	}
	now := s.now().UTC()
	canon, err := docstore.Canonical(patch, now)
	if err != nil {
		return fmt.Errorf("badger.Store.Update: %w", err)
	}
	want := docstore.RequiredVersion(pre)

	err = s.write(ctx, func(txn *badger.Txn) error {
		rec, err := load(txn, path)
		if err != nil {
			return err
		}
		if want != 0 && want != rec.Version {
			return fmt.Errorf("have version %d, want %d: %w", rec.Version, want, domain.ErrConflict)
		}
		current, err := docstore.Decode(rec.Data)
		if err != nil {
			return err
		}
		body, err := docstore.Encode(docstore.Merge(current, canon), now)
		if err != nil {
			return err
		}
		rec.Data = body
		rec.Version++
		rec.Updated = now
		return store(txn, path, rec)
	})
	if err != nil {
		return fmt.Errorf("badger.Store.Update %s: %w", path, err)
	}
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("badger.Store.Delete: %w", err)
	}
	var existed bool
	err := s.write(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(key(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			existed = false
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(key(path))
	})
	if err != nil {
		return fmt.Errorf("badger.Store.Delete: %w", err)
	}
	if existed {
		s.hub.Publish(path.Collection())
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// write runs fn in a read-write transaction, retrying when badger reports
// that a concurrent transaction committed first.
func (s *Store) write(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrConflict, err)
}

func load(txn *badger.Txn, path docstore.Path) (record, error) {
	item, err := txn.Get(key(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record{}, domain.ErrNotFound
	}
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
		return record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

func store(txn *badger.Txn, path docstore.Path, rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key(path), b)
}

func toSnapshot(path docstore.Path, rec record) (docstore.Snapshot, error) {
	data, err := docstore.Decode(rec.Data)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{
		ID:         path.ID(),
		Path:       path,
		Data:       data,
		Version:    rec.Version,
		Exists:     true,
		CreateTime: rec.Created.UTC(),
		UpdateTime: rec.Updated.UTC(),
	}, nil
}
