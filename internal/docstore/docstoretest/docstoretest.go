// Package docstoretest holds the behaviour every docstore backend must share.
// Backend packages call Run from their own tests.
package docstoretest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/timestamp"
)

const waitFor = 2 * time.Second

// Run exercises newStore against the docstore.Store contract. newStore must
// return an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("CreateThenGet", func(t *testing.T) { testCreateThenGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, newStore(t)) })
	t.Run("UpdatePrecondition", func(t *testing.T) { testUpdatePrecondition(t, newStore(t)) })
	t.Run("SetCreatesAndReplaces", func(t *testing.T) { testSet(t, newStore(t)) })
	t.Run("SetIfAbsent", func(t *testing.T) { testSetIfAbsent(t, newStore(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("QueryFiltersAndOrders", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("ListenDeliversChanges", func(t *testing.T) { testListen(t, newStore(t)) })
	t.Run("ListenDoc", func(t *testing.T) { testListenDoc(t, newStore(t)) })
}

func testCreateThenGet(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	id, err := s.Create(ctx, "trips", docstore.Document{
		"title":     "Kyoto",
		"days":      3,
		"createdAt": docstore.ServerTimestamp,
		"tags":      []any{"a", "b"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := s.Get(ctx, docstore.Trip(id))
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, id, snap.ID)
	assert.EqualValues(t, 1, snap.Version)
	assert.Equal(t, "Kyoto", snap.Data["title"])
	assert.EqualValues(t, 3, snap.Data["days"])
	assert.Equal(t, []any{"a", "b"}, snap.Data["tags"])

	created, err := timestamp.Normalize(snap.Data["createdAt"])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}

func testGetMissing(t *testing.T, s docstore.Store) {
	_, err := s.Get(context.Background(), docstore.Trip("nope"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdateMerges(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Trip("t1")
	require.NoError(t, s.Set(ctx, path, docstore.Document{"title": "A", "status": "upcoming"}))

	require.NoError(t, s.Update(ctx, path, docstore.Document{"title": "B"}))

	snap, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "B", snap.Data["title"])
	assert.Equal(t, "upcoming", snap.Data["status"])
	assert.EqualValues(t, 2, snap.Version)

	err = s.Update(ctx, docstore.Trip("missing"), docstore.Document{"title": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdatePrecondition(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Trip("t1")
	require.NoError(t, s.Set(ctx, path, docstore.Document{"n": 1}))

	require.NoError(t, s.Update(ctx, path, docstore.Document{"n": 2}, docstore.IfVersion(1)))

	err := s.Update(ctx, path, docstore.Document{"n": 3}, docstore.IfVersion(1))
	assert.ErrorIs(t, err, domain.ErrConflict)

	snap, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Data["n"])
}

func testSet(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Child("t1", docstore.CollectionPlans, "p1")

	require.NoError(t, s.Set(ctx, path, docstore.Document{"date": "2024-03-20", "x": true}))
	require.NoError(t, s.Set(ctx, path, docstore.Document{"date": "2024-03-21"}))

	snap, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, docstore.Document{"date": "2024-03-21"}, snap.Data)
	assert.EqualValues(t, 2, snap.Version)
}

func testSetIfAbsent(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Child("t1", docstore.CollectionPlans, "2024-03-20")

	require.NoError(t, s.Set(ctx, path, docstore.Document{"date": "2024-03-20", "n": 1}, docstore.IfAbsent()))

	err := s.Set(ctx, path, docstore.Document{"date": "2024-03-20", "n": 2}, docstore.IfAbsent())
	assert.ErrorIs(t, err, domain.ErrConflict)

	snap, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Data["n"])
	assert.EqualValues(t, 1, snap.Version)
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Trip("t1")
	require.NoError(t, s.Set(ctx, path, docstore.Document{"title": "A"}))

	require.NoError(t, s.Delete(ctx, path))
	require.NoError(t, s.Delete(ctx, path))

	_, err := s.Get(ctx, path)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testQuery(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	col := docstore.ChildCollection("t1", docstore.CollectionExpenses)
	for id, doc := range map[string]docstore.Document{
		"e1": {"date": "2024-03-20", "payer": "m1"},
		"e2": {"date": "2024-03-22", "payer": "m1"},
		"e3": {"date": "2024-03-21", "payer": "m2"},
	} {
		require.NoError(t, s.Set(ctx, docstore.Doc(col, id), doc))
	}
	// A document in another trip and one in a nested collection must not match.
	require.NoError(t, s.Set(ctx, docstore.Child("t2", docstore.CollectionExpenses, "x"), docstore.Document{"date": "2024-01-01"}))
	require.NoError(t, s.Set(ctx, docstore.Trip("t1"), docstore.Document{"title": "parent"}))

	all, err := s.Query(ctx, docstore.Query{Collection: col, OrderBy: "date", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3", "e1"}, ids(all))

	m1, err := s.Query(ctx, docstore.Query{Collection: col, OrderBy: "date"}.WhereEq("payer", "m1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, ids(m1))

	limited, err := s.Query(ctx, docstore.Query{Collection: col, OrderBy: "date", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids(limited))
}

// recorder collects live-query deliveries.
type recorder struct {
	mu    sync.Mutex
	snaps [][]docstore.Snapshot
	errs  []error
}

func (r *recorder) onSnap(s []docstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) onErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() []docstore.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func testListen(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	col := docstore.ChildCollection("t1", docstore.CollectionPlans)
	require.NoError(t, s.Set(ctx, docstore.Doc(col, "p1"), docstore.Document{"date": "2024-03-21"}))

	rec := &recorder{}
	unsub, err := s.Listen(ctx, docstore.Query{Collection: col, OrderBy: "date"}, rec.onSnap, rec.onErr)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"p1"}, ids(rec.last()))

	require.NoError(t, s.Set(ctx, docstore.Doc(col, "p0"), docstore.Document{"date": "2024-03-20"}))
	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"p0", "p1"}, ids(rec.last()))

	unsub()
	unsub()
	before := rec.count()
	require.NoError(t, s.Set(ctx, docstore.Doc(col, "p2"), docstore.Document{"date": "2024-03-22"}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, rec.count(), "no delivery after unsubscribe")
	assert.Empty(t, rec.errs)
}

func testListenDoc(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Trip("t1")

	var mu sync.Mutex
	var got []docstore.Snapshot
	unsub, err := s.ListenDoc(ctx, path, func(snap docstore.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, snap)
	}, nil)
	require.NoError(t, err)
	defer unsub()

	latest := func() (docstore.Snapshot, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(got) == 0 {
			return docstore.Snapshot{}, 0
		}
		return got[len(got)-1], len(got)
	}

	require.Eventually(t, func() bool { _, n := latest(); return n == 1 }, waitFor, 10*time.Millisecond)
	first, _ := latest()
	assert.False(t, first.Exists)

	require.NoError(t, s.Set(ctx, path, docstore.Document{"title": "A"}))
	require.Eventually(t, func() bool { snap, _ := latest(); return snap.Exists }, waitFor, 10*time.Millisecond)
	snap, _ := latest()
	assert.Equal(t, "A", snap.Data["title"])
}

func ids(snaps []docstore.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}
