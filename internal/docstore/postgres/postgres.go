// Package postgres stores documents in a single JSONB table. Live queries are
// driven by the documents_changed trigger (see migrations), which NOTIFYs
// the collection path on every write, so changes made by other server
// instances reach local listeners too.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

// Channel is the NOTIFY channel written by the documents_changed trigger.
const Channel = "documents_changed"

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres docstore.Store implementation.
type Store struct {
	db  db
	hub *docstore.Hub
	log *slog.Logger
	now func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// New constructs a Store backed by db. In production pass *pgxpool.Pool and
// start Run so writes from other instances are observed.
func New(db db, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, hub: docstore.NewHub(log), log: log, now: time.Now}
}

const selectColumns = `path, id, data, version, created_at, updated_at`

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Snapshot, error) {
	if err := path.Validate(); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("postgres.Store.Get: %w", err)
	}
	const q = `SELECT ` + selectColumns + ` FROM documents WHERE path = @path`

	snap, err := scanDocument(s.db.QueryRow(ctx, q, pgx.NamedArgs{"path": string(path)}))
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("postgres.Store.Get %s: %w", path, err)
	}
	return snap, nil
}

func (s *Store) Query(ctx context.Context, query docstore.Query) ([]docstore.Snapshot, error) {
	if err := docstore.ValidateCollection(query.Collection); err != nil {
		return nil, fmt.Errorf("postgres.Store.Query: %w", err)
	}
	filter := make(map[string]any, len(query.Where))
	for _, f := range query.Where {
		filter[f.Field] = f.Value
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.Query: encode filter: %w", err)
	}

	// Containment narrows the scan using the GIN index; Matches re-checks
	// with the exact comparison rules shared by every backend.
	const q = `
		SELECT ` + selectColumns + `
		FROM documents
		WHERE collection = @collection
		  AND data @> @filter::jsonb`

	rows, err := s.db.Query(ctx, q, pgx.NamedArgs{
		"collection": query.Collection,
		"filter":     string(filterJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.Query: %w", err)
	}
	defer rows.Close()

	var out []docstore.Snapshot
	for rows.Next() {
		snap, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.Query: scan: %w", err)
		}
		if query.Matches(snap.Data) {
			out = append(out, snap)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.Store.Query: rows: %w", err)
	}
	return query.Apply(out), nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("postgres.Store.Listen: %w", err)
	}
	return s.hub.WatchQuery(ctx, q, s.Query, onSnap, onErr), nil
}

func (s *Store) ListenDoc(ctx context.Context, path docstore.Path, onSnap func(docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("postgres.Store.ListenDoc: %w", err)
	}
	return s.hub.WatchDoc(ctx, path, s.Get, onSnap, onErr), nil
}

func (s *Store) Create(ctx context.Context, collection string, data docstore.Document) (string, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", fmt.Errorf("postgres.Store.Create: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(data, now)
	if err != nil {
		return "", fmt.Errorf("postgres.Store.Create: %w", err)
	}

	const q = `
		INSERT INTO documents (path, collection, id, data, version, created_at, updated_at)
		VALUES (@path, @collection, @id, @data::jsonb, 1, @now, @now)`

	id := uuid.NewString()
	_, err = s.db.Exec(ctx, q, pgx.NamedArgs{
		"path":       string(docstore.Doc(collection, id)),
		"collection": collection,
		"id":         id,
		"data":       string(body),
		"now":        now,
	})
	if err != nil {
		return "", fmt.Errorf("postgres.Store.Create: %w", err)
	}
	s.hub.Publish(collection)
	return id, nil
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("postgres.Store.Set: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(data, now)
	if err != nil {
		return fmt.Errorf("postgres.Store.Set: %w", err)
	}

	const insert = `
		INSERT INTO documents (path, collection, id, data, version, created_at, updated_at)
		VALUES (@path, @collection, @id, @data::jsonb, 1, @now, @now)`
	q := insert + `
		ON CONFLICT (path) DO UPDATE
		SET data       = EXCLUDED.data,
		    version    = documents.version + 1,
		    updated_at = EXCLUDED.updated_at`
	absent := docstore.RequiresAbsent(pre)
	if absent {
		q = insert + `
		ON CONFLICT (path) DO NOTHING`
	}

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"path":       string(path),
		"collection": path.Collection(),
		"id":         path.ID(),
		"data":       string(body),
		"now":        now,
	})
	if err != nil {
		return fmt.Errorf("postgres.Store.Set: %w", err)
	}
	if absent && tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres.Store.Set %s: %w", path, domain.ErrConflict)
	}
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, patch docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("postgres.Store.Update: %w", err)
	}
	now := s.now().UTC()
	body, err := docstore.Encode(patch, now)
	if err != nil {
		return fmt.Errorf("postgres.Store.Update: %w", err)
	}

	// jsonb || replaces top-level keys, which is exactly field-patch semantics.
	const q = `
		UPDATE documents
		SET data       = data || @patch::jsonb,
		    version    = version + 1,
		    updated_at = @now
		WHERE path = @path
		  AND (@version::bigint = 0 OR version = @version::bigint)
		RETURNING version`

	var version int64
	err = s.db.QueryRow(ctx, q, pgx.NamedArgs{
		"path":    string(path),
		"patch":   string(body),
		"now":     now,
		"version": docstore.RequiredVersion(pre),
	}).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres.Store.Update %s: %w", path, s.missOrConflict(ctx, path))
	}
	if err != nil {
		return fmt.Errorf("postgres.Store.Update: %w", err)
	}
	s.hub.Publish(path.Collection())
	return nil
}

// missOrConflict explains an UPDATE that matched no row.
func (s *Store) missOrConflict(ctx context.Context, path docstore.Path) error {
	const q = `SELECT version FROM documents WHERE path = @path`
	var version int64
	err := s.db.QueryRow(ctx, q, pgx.NamedArgs{"path": string(path)}).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return err
	}
	return fmt.Errorf("now at version %d: %w", version, domain.ErrConflict)
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("postgres.Store.Delete: %w", err)
	}
	const q = `DELETE FROM documents WHERE path = @path`

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{"path": string(path)})
	if err != nil {
		return fmt.Errorf("postgres.Store.Delete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.hub.Publish(path.Collection())
	}
	return nil
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error { return nil }

// Run LISTENs on Channel and forwards every notification to local live
// queries until ctx is cancelled. The connection is re-established with a
// capped backoff if it drops.
func (s *Store) Run(ctx context.Context, pool *pgxpool.Pool) error {
	backoff := 250 * time.Millisecond
	for {
		err := s.listen(ctx, pool)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("postgres: change listener interrupted", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 10*time.Second)
	}
}

func (s *Store) listen(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.log.Info("postgres: listening for document changes", "channel", Channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		s.hub.Publish(n.Payload)
	}
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanDocument to
// be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (docstore.Snapshot, error) {
	var (
		snap docstore.Snapshot
		path string
		raw  []byte
	)
	err := sc.Scan(&path, &snap.ID, &raw, &snap.Version, &snap.CreateTime, &snap.UpdateTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Snapshot{}, domain.ErrNotFound
		}
		return docstore.Snapshot{}, err
	}
	data, err := docstore.Decode(raw)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	snap.Path = docstore.Path(path)
	snap.Data = data
	snap.Exists = true
	snap.CreateTime = snap.CreateTime.UTC()
	snap.UpdateTime = snap.UpdateTime.UTC()
	return snap, nil
}
