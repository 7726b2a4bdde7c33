// Package sqlite stores documents as JSON text in a single SQLite table,
// using the pure-Go modernc driver. It suits single-instance deployments and
// the tripctl tool; live queries only observe writes made through the same
// Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver for database/sql

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	sqlitemigrations "github.com/pkordes/travelogue/migrations/sqlite"
)

// Store is the SQLite docstore.Store implementation.
type Store struct {
	db  *sql.DB
	hub *docstore.Hub
	now func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("sqlite.Open: create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// One connection serialises writers (SQLite has a single write lock) and
	// keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sqlitemigrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: migrate: %w", err)
	}
	return &Store{db: db, hub: docstore.NewHub(log), now: time.Now}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

const selectColumns = `path, id, data, version, created_at, updated_at`

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Snapshot, error) {
	if err := path.Validate(); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("sqlite.Store.Get: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE path = ?`, string(path))
	snap, err := scanDocument(row)
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("sqlite.Store.Get %s: %w", path, err)
	}
	return snap, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("sqlite.Store.Query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE collection = ?`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Store.Query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []docstore.Snapshot
	for rows.Next() {
		snap, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.Store.Query: scan: %w", err)
		}
		if q.Matches(snap.Data) {
			out = append(out, snap)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.Store.Query: rows: %w", err)
	}
	return q.Apply(out), nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("sqlite.Store.Listen: %w", err)
	}
	return s.hub.WatchQuery(ctx, q, s.Query, onSnap, onErr), nil
}

func (s *Store) ListenDoc(ctx context.Context, path docstore.Path, onSnap func(docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite.Store.ListenDoc: %w", err)
	}
	return s.hub.WatchDoc(ctx, path, s.Get, onSnap, onErr), nil
}

func (s *Store) Create(ctx context.Context, collection string, data docstore.Document) (string, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", fmt.Errorf("sqlite.Store.Create: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(data, now)
	if err != nil {
		return "", fmt.Errorf("sqlite.Store.Create: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (path, collection, id, data, version, created_at, updated_at) VALUES (?, ?, ?, ?, 1, ?, ?)`,
		string(docstore.Doc(collection, id)), collection, id, string(body), now.UnixNano(), now.UnixNano())
	if err != nil {
		return "", fmt.Errorf("sqlite.Store.Create: %w", err)
	}
	s.hub.Publish(collection)
	return id, nil
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("sqlite.Store.Set: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(data, now)
	if err != nil {
		return fmt.Errorf("sqlite.Store.Set: %w", err)
	}
	conflict := `ON CONFLICT(path) DO UPDATE
		SET data = excluded.data, version = documents.version + 1, updated_at = excluded.updated_at`
	absent := docstore.RequiresAbsent(pre)
	if absent {
		conflict = `ON CONFLICT(path) DO NOTHING`
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, id, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		`+conflict,
		string(path), path.Collection(), path.ID(), string(body), now.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite.Store.Set: %w", err)
	}
	if absent {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite.Store.Set: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("sqlite.Store.Set %s: %w", path, domain.ErrConflict)
		}
	}
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, patch docstore.Document, pre ...docstore.Precondition) (retErr error) {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("sqlite.Store.Update: %w", err)
	}
	now := s.now().UTC()
	canon, err := docstore.Canonical(patch, now)
	if err != nil {
		return fmt.Errorf("sqlite.Store.Update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.Store.Update: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := scanDocument(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE path = ?`, string(path)))
	if err != nil {
		return fmt.Errorf("sqlite.Store.Update %s: %w", path, err)
	}
	if want := docstore.RequiredVersion(pre); want != 0 && want != current.Version {
		return fmt.Errorf("sqlite.Store.Update %s: have version %d, want %d: %w", path, current.Version, want, domain.ErrConflict)
	}
	body, err := docstore.Encode(docstore.Merge(current.Data, canon), now)
	if err != nil {
		return fmt.Errorf("sqlite.Store.Update: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, version = version + 1, updated_at = ? WHERE path = ?`,
		string(body), now.UnixNano(), string(path)); err != nil {
		return fmt.Errorf("sqlite.Store.Update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.Store.Update: commit: %w", err)
	}
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("sqlite.Store.Delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, string(path))
	if err != nil {
		return fmt.Errorf("sqlite.Store.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.Publish(path.Collection())
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (docstore.Snapshot, error) {
	var (
		snap             docstore.Snapshot
		path, raw        string
		created, updated int64
	)
	if err := sc.Scan(&path, &snap.ID, &raw, &snap.Version, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Snapshot{}, domain.ErrNotFound
		}
		return docstore.Snapshot{}, err
	}
	data, err := docstore.Decode([]byte(raw))
	if err != nil {
		return docstore.Snapshot{}, err
	}
	snap.Path = docstore.Path(path)
	snap.Data = data
	snap.Exists = true
	snap.CreateTime = time.Unix(0, created).UTC()
	snap.UpdateTime = time.Unix(0, updated).UTC()
	return snap, nil
}
