package backup_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/backup"
	"github.com/pkordes/travelogue/internal/blob"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/docstore/memory"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/store"
)

type fixture struct {
	ds          *memory.Store
	svc         *backup.Service
	blobs       *blob.Memory
	trips       *store.TripStore
	plans       *store.PlanStore
	expenses    *store.ExpenseStore
	collections *store.CollectionStore
}

func newFixture(t *testing.T, layout store.Layout) *fixture {
	t.Helper()
	ds := memory.New(nil)
	p := ingest.New(nil)
	backend := func(name string) store.ChildBackend {
		b, err := store.NewChildBackend(ds, layout, name)
		require.NoError(t, err)
		return b
	}
	children := backup.Children{
		Plans:       backend(docstore.CollectionPlans),
		Expenses:    backend(docstore.CollectionExpenses),
		Collections: backend(docstore.CollectionCollections),
	}

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	blobs := blob.NewMemory()
	return &fixture{
		ds:          ds,
		svc:         backup.New(ds, children, p, blobs, nil, backup.WithClock(now)),
		blobs:       blobs,
		trips:       store.NewTripStore(ds, p, children.Plans, children.Expenses, children.Collections),
		plans:       store.NewPlanStore(children.Plans, p),
		expenses:    store.NewExpenseStore(children.Expenses, p),
		collections: store.NewCollectionStore(children.Collections, p),
	}
}

func as(uid string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uid})
}

// seed creates one fully populated trip for uid and returns its id.
func (f *fixture) seed(t *testing.T, uid, title string) string {
	t.Helper()
	ctx := as(uid)
	id, err := f.trips.Create(ctx, map[string]any{"title": title, "startDate": "2024-05-01", "endDate": "2024-05-03"})
	require.NoError(t, err)
	_, err = f.trips.UpsertBooking(ctx, id, map[string]any{"type": "hotel", "title": "Ryokan"})
	require.NoError(t, err)
	_, err = f.plans.UpsertActivity(ctx, id, "2024-05-01", map[string]any{"time": "09:00", "title": "Shrine", "category": "sight"})
	require.NoError(t, err)
	_, err = f.expenses.Create(ctx, id, map[string]any{
		"date": "2024-05-01", "category": "food", "amount": 1500, "currency": "JPY", "description": "soba",
	})
	require.NoError(t, err)
	_, err = f.collections.Create(ctx, id, map[string]any{
		"title": "Cafe list", "url": "https://example.com/cafes", "source": "web", "tags": []any{"coffee"},
	})
	require.NoError(t, err)
	return id
}

func layouts() []store.Layout {
	return []store.Layout{store.LayoutCollections, store.LayoutEmbedded}
}

func TestExportAll_OnlyOwnersTrips(t *testing.T) {
	for _, layout := range layouts() {
		t.Run(string(layout), func(t *testing.T) {
			f := newFixture(t, layout)
			mine := f.seed(t, "u1", "Kyoto")
			f.seed(t, "u2", "Oslo")

			pkg, err := f.svc.ExportAll(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, backup.Version, pkg.Version)
			assert.Equal(t, "u1", pkg.UserID)
			assert.NotEmpty(t, pkg.ExportedAt)
			require.Len(t, pkg.Trips, 1)

			b := pkg.Trips[0]
			assert.Equal(t, mine, b.Data.ID)
			assert.Equal(t, "Kyoto", b.Data.Title)
			assert.Len(t, b.Data.Bookings, 1)
			assert.Nil(t, b.Data.Plans, "plans are reported once, in the bundle")
			require.Len(t, b.Plans, 1)
			assert.Len(t, b.Plans[0].Activities, 1)
			require.Len(t, b.Expenses, 1)
			require.Len(t, b.Collections, 1)
			assert.Equal(t, []string{"coffee"}, b.Collections[0].Tags)
		})
	}
}

func TestExportTrip(t *testing.T) {
	f := newFixture(t, store.LayoutCollections)
	id := f.seed(t, "u1", "Kyoto")

	pkg, err := f.svc.ExportTrip(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, pkg.Trip.Data.ID)
	assert.Len(t, pkg.Trip.Expenses, 1)

	_, err = f.svc.ExportTrip(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportAll_RestoresWithOriginalIDs(t *testing.T) {
	for _, layout := range layouts() {
		t.Run(string(layout), func(t *testing.T) {
			f := newFixture(t, layout)
			ctx := context.Background()
			id := f.seed(t, "u1", "Kyoto")
			other := f.seed(t, "u2", "Oslo")

			before, err := f.svc.ExportAll(ctx, "u1")
			require.NoError(t, err)
			payload, err := json.Marshal(before)
			require.NoError(t, err)

			// Changes made after the export are rolled back by the import.
			require.NoError(t, f.trips.Update(as("u1"), id, map[string]any{"title": "Changed"}))
			f.seed(t, "u1", "Extra")

			require.NoError(t, f.svc.ImportAll(ctx, "u1", bytes.NewReader(payload)))

			after, err := f.svc.ExportAll(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, after.Trips, 1)
			assert.Equal(t, before.Trips[0].Data.ID, after.Trips[0].Data.ID)
			assert.Equal(t, "Kyoto", after.Trips[0].Data.Title)
			assert.Equal(t, before.Trips[0].Expenses, after.Trips[0].Expenses)
			assert.Equal(t, before.Trips[0].Collections, after.Trips[0].Collections)
			assert.Equal(t, before.Trips[0].Data.Bookings, after.Trips[0].Data.Bookings)
			require.Len(t, after.Trips[0].Plans, 1)
			assert.Equal(t, before.Trips[0].Plans[0].Activities, after.Trips[0].Plans[0].Activities)

			_, err = f.trips.Get(as("u2"), other)
			assert.NoError(t, err, "other users are untouched")
		})
	}
}

func TestImportAll_RejectsBeforeWriting(t *testing.T) {
	f := newFixture(t, store.LayoutCollections)
	ctx := context.Background()
	id := f.seed(t, "u1", "Kyoto")

	pkg, err := f.svc.ExportAll(ctx, "u1")
	require.NoError(t, err)
	good, err := json.Marshal(pkg)
	require.NoError(t, err)

	var tampered map[string]any
	require.NoError(t, json.Unmarshal(good, &tampered))
	trip := tampered["trips"].([]any)[0].(map[string]any)
	trip["expenses"].([]any)[0].(map[string]any)["amount"] = -3
	bad, err := json.Marshal(tampered)
	require.NoError(t, err)

	tests := map[string]string{
		"not json":        "{oops",
		"missing trips":   `{"version":"1.1","exportedAt":"x","userId":"u1"}`,
		"invalid expense": string(bad),
		"null data":       `{"version":"1.1","exportedAt":"x","userId":"u1","trips":[{"data":null,"plans":[],"expenses":[],"collections":[]}]}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			err := f.svc.ImportAll(ctx, "u1", strings.NewReader(payload))
			require.ErrorIs(t, err, domain.ErrMalformedImport)

			_, err = f.trips.Get(as("u1"), id)
			assert.NoError(t, err, "nothing cleared")
		})
	}

	err = f.svc.ImportAll(ctx, "u1", bytes.NewReader(bad))
	var ie *backup.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Fields, "trips[0].expenses[0].amount")
}

func TestImportTrip_CreatesCopy(t *testing.T) {
	for _, layout := range layouts() {
		t.Run(string(layout), func(t *testing.T) {
			f := newFixture(t, layout)
			ctx := context.Background()
			id := f.seed(t, "u1", "Kyoto")

			single, err := f.svc.ExportTrip(ctx, id)
			require.NoError(t, err)
			payload, err := json.Marshal(single)
			require.NoError(t, err)

			newID, err := f.svc.ImportTrip(ctx, "u2", bytes.NewReader(payload))
			require.NoError(t, err)
			assert.NotEqual(t, id, newID)

			copied, err := f.svc.ExportTrip(ctx, newID)
			require.NoError(t, err)
			assert.Equal(t, "Kyoto (imported)", copied.Trip.Data.Title)
			assert.Equal(t, "u2", copied.Trip.Data.UserID)
			require.Len(t, copied.Trip.Expenses, 1)
			assert.NotEqual(t, single.Trip.Expenses[0].ID, copied.Trip.Expenses[0].ID)
			require.Len(t, copied.Trip.Collections, 1)
			assert.NotEqual(t, single.Trip.Collections[0].ID, copied.Trip.Collections[0].ID)
			require.Len(t, copied.Trip.Plans, 1)
			assert.Equal(t, newID, copied.Trip.Plans[0].TripID)

			original, err := f.svc.ExportTrip(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "Kyoto", original.Trip.Data.Title)
		})
	}
}

func TestCloudBackups(t *testing.T) {
	f := newFixture(t, store.LayoutCollections)
	ctx := context.Background()
	id := f.seed(t, "ann@example.com", "Kyoto")

	first, err := f.svc.CreateCloudBackup(ctx, "ann@example.com")
	require.NoError(t, err)
	require.NoError(t, f.trips.Delete(as("ann@example.com"), id))
	second, err := f.svc.CreateCloudBackup(ctx, "ann@example.com")
	require.NoError(t, err)

	list, err := f.svc.ListCloudBackups(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	others, err := f.svc.ListCloudBackups(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, f.svc.RestoreCloudBackup(ctx, "ann@example.com", first.ID))
	trip, err := f.trips.Get(as("ann@example.com"), id)
	require.NoError(t, err)
	assert.Equal(t, "Kyoto", trip.Title)

	err = f.svc.RestoreCloudBackup(ctx, "ann@example.com", "nope.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = f.svc.RestoreCloudBackup(ctx, "ann@example.com", "../bob/x.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloudBackups_NotConfigured(t *testing.T) {
	svc := backup.New(memory.New(nil), backup.Children{}, ingest.New(nil), nil, nil)
	_, err := svc.ListCloudBackups(context.Background(), "u1")
	assert.ErrorIs(t, err, backup.ErrNotConfigured)

	_, err = svc.CreateCloudBackup(context.Background(), "u1")
	assert.ErrorIs(t, err, backup.ErrNotConfigured)
}
