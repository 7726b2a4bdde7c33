package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/docstore/docstoretest"
	"github.com/pkordes/travelogue/internal/docstore/sqlite"
)

func openTemp(t *testing.T, name string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		return openTemp(t, "docs.db")
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "nested", "docs.db")

	s, err := sqlite.Open(ctx, file, nil)
	require.NoError(t, err)
	id, err := s.Create(ctx, docstore.CollectionTrips, docstore.Document{"title": "Lisbon"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.Open(ctx, file, nil)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Get(ctx, docstore.Trip(id))
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", snap.Data["title"])
	assert.EqualValues(t, 1, snap.Version)
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, docstore.Trip("t1"), docstore.Document{"n": 1}))
	require.NoError(t, s.Update(ctx, docstore.Trip("t1"), docstore.Document{"m": 2}))

	snap, err := s.Get(ctx, docstore.Trip("t1"))
	require.NoError(t, err)
	assert.Equal(t, docstore.Document{"n": float64(1), "m": float64(2)}, snap.Data)
}
