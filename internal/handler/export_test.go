package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/backup"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/handler"
	"github.com/pkordes/travelogue/internal/store"
)

type mockBackupper struct {
	exportAll   func(ctx context.Context, userID string) (backup.Package, error)
	exportTrip  func(ctx context.Context, tripID string) (backup.SinglePackage, error)
	importAll   func(ctx context.Context, userID string, r io.Reader) error
	importTrip  func(ctx context.Context, userID string, r io.Reader) (string, error)
	createCloud func(ctx context.Context, userID string) (backup.CloudBackup, error)
	listCloud   func(ctx context.Context, userID string) ([]backup.CloudBackup, error)
	restore     func(ctx context.Context, userID, id string) error
}

var _ handler.Backupper = (*mockBackupper)(nil)
var _ handler.Backupper = (*backup.Service)(nil)

func (m *mockBackupper) ExportAll(ctx context.Context, userID string) (backup.Package, error) {
	return m.exportAll(ctx, userID)
}
func (m *mockBackupper) ExportTrip(ctx context.Context, tripID string) (backup.SinglePackage, error) {
	return m.exportTrip(ctx, tripID)
}
func (m *mockBackupper) ImportAll(ctx context.Context, userID string, r io.Reader) error {
	return m.importAll(ctx, userID, r)
}
func (m *mockBackupper) ImportTrip(ctx context.Context, userID string, r io.Reader) (string, error) {
	return m.importTrip(ctx, userID, r)
}
func (m *mockBackupper) CreateCloudBackup(ctx context.Context, userID string) (backup.CloudBackup, error) {
	return m.createCloud(ctx, userID)
}
func (m *mockBackupper) ListCloudBackups(ctx context.Context, userID string) ([]backup.CloudBackup, error) {
	return m.listCloud(ctx, userID)
}
func (m *mockBackupper) RestoreCloudBackup(ctx context.Context, userID, id string) error {
	return m.restore(ctx, userID, id)
}

func TestExport_RoundTrip(t *testing.T) {
	for _, layout := range []store.Layout{store.LayoutCollections, store.LayoutEmbedded} {
		t.Run(string(layout), func(t *testing.T) {
			a := newApp(t, layout)
			id := createTrip(t, a)
			require.Equal(t, http.StatusCreated, do(t, a, http.MethodPost, "/trips/"+id+"/expenses", expenseBody("2024-03-21")).Code)

			rec := do(t, a, http.MethodGet, "/export", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="travelogue-backup-`)
			raw := rec.Body.String()
			pkg := decode[backup.Package](t, rec)
			assert.Equal(t, "ann@example.com", pkg.UserID)
			require.Len(t, pkg.Trips, 1)
			assert.Equal(t, id, pkg.Trips[0].Data.ID)
			assert.Len(t, pkg.Trips[0].Expenses, 1)

			// Wipe the trip, then restore it from the download.
			require.Equal(t, http.StatusNoContent, do(t, a, http.MethodDelete, "/trips/"+id, nil).Code)
			require.Equal(t, http.StatusNoContent, do(t, a, http.MethodPost, "/import", raw).Code)

			rec = do(t, a, http.MethodGet, "/trips/"+id, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Kyoto", decode[domain.Trip](t, rec).Title)
			rec = do(t, a, http.MethodGet, "/trips/"+id+"/expenses", nil)
			assert.Len(t, decode[[]domain.Expense](t, rec), 1)
		})
	}
}

func TestExport_ImportTripAddsCopy(t *testing.T) {
	a := newApp(t, store.LayoutCollections)
	id := createTrip(t, a)

	rec := do(t, a, http.MethodGet, "/trips/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "travelogue-trip-")

	rec = do(t, a, http.MethodPost, "/import/trip", rec.Body.String())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	copyID := decode[handler.IDResponse](t, rec).ID
	assert.NotEqual(t, id, copyID)

	rec = do(t, a, http.MethodGet, "/trips/"+copyID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kyoto (imported)", decode[domain.Trip](t, rec).Title)
	assert.Len(t, decode[[]domain.Trip](t, do(t, a, http.MethodGet, "/trips", nil)), 2)
}

func TestExport_MalformedImport(t *testing.T) {
	a := newApp(t, store.LayoutCollections)
	id := createTrip(t, a)

	rec := do(t, a, http.MethodPost, "/import", map[string]any{"version": "1.1", "trips": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[handler.ErrorResponse](t, rec)
	assert.Equal(t, "malformed_import", body.Error.Code)
	assert.Contains(t, body.Error.Fields, "exportedAt")
	assert.Contains(t, body.Error.Fields, "userId")

	// Nothing was cleared.
	assert.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/trips/"+id, nil).Code)

	rec = do(t, a, http.MethodPost, "/import/trip", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackups_CreateListRestore(t *testing.T) {
	a := newApp(t, store.LayoutEmbedded)
	id := createTrip(t, a)

	rec := do(t, a, http.MethodPost, "/backups", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[backup.CloudBackup](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Positive(t, created.Size)

	rec = do(t, a, http.MethodGet, "/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]backup.CloudBackup](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.Equal(t, http.StatusNoContent, do(t, a, http.MethodDelete, "/trips/"+id, nil).Code)
	rec = do(t, a, http.MethodPost, "/backups/"+created.ID+"/restore", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/trips/"+id, nil).Code)

	rec = do(t, a, http.MethodPost, "/backups/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackups_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not configured", fmt.Errorf("wrapped: %w", backup.ErrNotConfigured), http.StatusServiceUnavailable, "not_configured"},
		{"internal", fmt.Errorf("bucket exploded"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			h := newMockApp(handler.Deps{Backups: &mockBackupper{
				listCloud: func(_ context.Context, userID string) ([]backup.CloudBackup, error) {
					gotUser = userID
					return nil, tt.err
				},
			}})
			rec := do(t, h, http.MethodGet, "/backups", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode[handler.ErrorResponse](t, rec).Error.Code)
			assert.Equal(t, "ann@example.com", gotUser)
		})
	}
}
