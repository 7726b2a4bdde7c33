// Package mongo stores documents in one MongoDB collection, keyed by
// document path. Each document body is kept as an embedded BSON document so
// it stays inspectable with ordinary Mongo tooling. Run tails a change
// stream so writes from other instances reach local live queries (this
// needs a replica set).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

// CollectionName is the Mongo collection holding every document.
const CollectionName = "documents"

type record struct {
	Path       string    `bson:"_id"`
	Collection string    `bson:"collection"`
	ID         string    `bson:"docId"`
	Data       bson.Raw  `bson:"data"`
	Version    int64     `bson:"version"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

// Store is the MongoDB docstore.Store implementation.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	hub    *docstore.Hub
	log    *slog.Logger
	now    func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and ensures the collection
// index exists.
func Open(ctx context.Context, uri, database string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Open: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo.Open: ping: %w", err)
	}

	coll := client.Database(database).Collection(CollectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "collection", Value: 1}}})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo.Open: create index: %w", err)
	}
	log.Info("mongo: connected", "database", database)
	return &Store{client: client, coll: coll, hub: docstore.NewHub(log), log: log, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Snapshot, error) {
	if err := path.Validate(); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("mongo.Store.Get: %w", err)
	}
	var rec record
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: string(path)}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Snapshot{}, fmt.Errorf("mongo.Store.Get %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("mongo.Store.Get %s: %w", path, err)
	}
	snap, err := toSnapshot(rec)
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("mongo.Store.Get %s: %w", path, err)
	}
	return snap, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("mongo.Store.Query: %w", err)
	}
	cur, err := s.coll.Find(ctx, bson.D{{Key: "collection", Value: q.Collection}})
	if err != nil {
		return nil, fmt.Errorf("mongo.Store.Query: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []docstore.Snapshot
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("mongo.Store.Query: decode: %w", err)
		}
		snap, err := toSnapshot(rec)
		if err != nil {
			return nil, fmt.Errorf("mongo.Store.Query: %w", err)
		}
		if q.Matches(snap.Data) {
			out = append(out, snap)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo.Store.Query: cursor: %w", err)
	}
	return q.Apply(out), nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, onSnap func([]docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := docstore.ValidateCollection(q.Collection); err != nil {
		return nil, fmt.Errorf("mongo.Store.Listen: %w", err)
	}
	return s.hub.WatchQuery(ctx, q, s.Query, onSnap, onErr), nil
}

func (s *Store) ListenDoc(ctx context.Context, path docstore.Path, onSnap func(docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("mongo.Store.ListenDoc: %w", err)
	}
	return s.hub.WatchDoc(ctx, path, s.Get, onSnap, onErr), nil
}

func (s *Store) Create(ctx context.Context, collection string, data docstore.Document) (string, error) {
	if err := docstore.ValidateCollection(collection); err != nil {
		return "", fmt.Errorf("mongo.Store.Create: %w", err)
	}
	now := s.now().UTC()
	body, err := toBSON(data, now)
	if err != nil {
		return "", fmt.Errorf("mongo.Store.Create: %w", err)
	}
	id := uuid.NewString()
	_, err = s.coll.InsertOne(ctx, bson.D{
		{Key: "_id", Value: string(docstore.Doc(collection, id))},
		{Key: "collection", Value: collection},
		{Key: "docId", Value: id},
		{Key: "data", Value: body},
		{Key: "version", Value: int64(1)},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	})
	if err != nil {
		return "", fmt.Errorf("mongo.Store.Create: %w", err)
	}
	s.hub.Publish(collection)
	return id, nil
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("mongo.Store.Set: %w", err)
	}
	now := s.now().UTC()
	body, err := toBSON(data, now)
	if err != nil {
		return fmt.Errorf("mongo.Store.Set: %w", err)
	}
	if docstore.RequiresAbsent(pre) {
		_, err = s.coll.InsertOne(ctx, bson.D{
			{Key: "_id", Value: string(path)},
			{Key: "collection", Value: path.Collection()},
			{Key: "docId", Value: path.ID()},
			{Key: "data", Value: body},
			{Key: "version", Value: int64(1)},
			{Key: "createdAt", Value: now},
			{Key: "updatedAt", Value: now},
		})
		switch {
		case mongo.IsDuplicateKeyError(err):
			return fmt.Errorf("mongo.Store.Set %s: %w", path, domain.ErrConflict)
		case err != nil:
			return fmt.Errorf("mongo.Store.Set: %w", err)
		}
		s.hub.Publish(path.Collection())
		return nil
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "collection", Value: path.Collection()},
			{Key: "docId", Value: path.ID()},
			{Key: "data", Value: body},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: int64(1)}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: now}}},
	}
	_, err = s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: string(path)}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo.Store.Set: %w", err)
	}
	s.hub.Publish(path.Collection())
	return nil
}

func (s *Store) Update(ctx context.Context, path docstore.Path, patch docstore.Document, pre ...docstore.Precondition) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("mongo.Store.Update: %w", err)
	}
	now := s.now().UTC()
	body, err := toBSON(patch, now)
	if err != nil {
		return fmt.Errorf("mongo.Store.Update: %w", err)
	}

	set := bson.D{{Key: "updatedAt", Value: now}}
	for _, e := range body {
		set = append(set, bson.E{Key: "data." + e.Key, Value: e.Value})
	}
	filter := bson.D{{Key: "_id", Value: string(path)}}
	if want := docstore.RequiredVersion(pre); want != 0 {
		filter = append(filter, bson.E{Key: "version", Value: want})
	}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: int64(1)}}},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongo.Store.Update: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongo.Store.Update %s: %w", path, s.missOrConflict(ctx, path))
	}
	s.hub.Publish(path.Collection())
	return nil
}

// missOrConflict explains an update whose filter matched nothing.
func (s *Store) missOrConflict(ctx context.Context, path docstore.Path) error {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: string(path)}})
	switch {
	case err != nil:
		return err
	case n == 0:
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("mongo.Store.Delete: %w", err)
	}
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: string(path)}})
	if err != nil {
		return fmt.Errorf("mongo.Store.Delete: %w", err)
	}
	if res.DeletedCount > 0 {
		s.hub.Publish(path.Collection())
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Run tails the collection's change stream and forwards every change to
// local live queries until ctx is cancelled, reopening the stream with a
// capped backoff when it fails.
func (s *Store) Run(ctx context.Context) error {
	backoff := 250 * time.Millisecond
	for {
		err := s.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("mongo: change stream interrupted", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 10*time.Second)
	}
}

type changeEvent struct {
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (s *Store) watch(ctx context.Context) error {
	stream, err := s.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = stream.Close(context.Background()) }()
	s.log.Info("mongo: watching document changes")

	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			s.log.Warn("mongo: undecodable change event", "error", err)
			continue
		}
		if p := docstore.Path(ev.DocumentKey.ID); p.Validate() == nil {
			s.hub.Publish(p.Collection())
		}
	}
	return stream.Err()
}

// toBSON resolves placeholders and converts doc to an ordered BSON document
// via its JSON encoding, so stored values have the same shapes every other
// backend stores.
func toBSON(doc docstore.Document, now time.Time) (bson.D, error) {
	b, err := docstore.Encode(doc, now)
	if err != nil {
		return nil, err
	}
	var out bson.D
	if err := bson.UnmarshalExtJSON(b, false, &out); err != nil {
		return nil, fmt.Errorf("convert to bson: %w", err)
	}
	return out, nil
}

func toSnapshot(rec record) (docstore.Snapshot, error) {
	data := docstore.Document{}
	if len(rec.Data) > 0 {
		b, err := bson.MarshalExtJSON(rec.Data, false, false)
		if err != nil {
			return docstore.Snapshot{}, fmt.Errorf("convert from bson: %w", err)
		}
		if data, err = docstore.Decode(b); err != nil {
			return docstore.Snapshot{}, err
		}
	}
	path := docstore.Path(rec.Path)
	return docstore.Snapshot{
		ID:         path.ID(),
		Path:       path,
		Data:       data,
		Version:    rec.Version,
		Exists:     true,
		CreateTime: rec.CreatedAt.UTC(),
		UpdateTime: rec.UpdatedAt.UTC(),
	}, nil
}
