package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/app"
	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/blob"
	"github.com/pkordes/travelogue/internal/config"
	"github.com/pkordes/travelogue/internal/store"
)

func baseConfig(driver string) config.Config {
	return config.Config{
		DocstoreDriver: driver,
		ChildLayout:    string(store.LayoutCollections),
		Blob:           blob.Config{Driver: blob.DriverMemory},
	}
}

func TestOpen_Drivers(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  func() config.Config
	}{
		{"memory", func() config.Config { return baseConfig(config.DriverMemory) }},
		{"sqlite", func() config.Config {
			c := baseConfig(config.DriverSQLite)
			c.SQLitePath = filepath.Join(dir, "docs.db")
			return c
		}},
		{"badger", func() config.Config {
			c := baseConfig(config.DriverBadger)
			c.BadgerPath = filepath.Join(dir, "badger")
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a, err := app.Open(ctx, tt.cfg(), nil)
			require.NoError(t, err)
			defer a.Close()

			require.NoError(t, a.Migrate(ctx))

			ctx = auth.WithIdentity(ctx, auth.Identity{UID: "u1", Email: "ann@example.com"})
			id, err := a.Set.Trips.Create(ctx, map[string]any{
				"title": "Kyoto", "startDate": "2024-03-20", "endDate": "2024-03-22",
			})
			require.NoError(t, err)

			pkg, err := a.Backups.ExportAll(ctx, "ann@example.com")
			require.NoError(t, err)
			require.Len(t, pkg.Trips, 1)
			assert.Equal(t, id, pkg.Trips[0].Data.ID)
		})
	}
}

func TestOpen_Rejections(t *testing.T) {
	_, err := app.Open(context.Background(), baseConfig("cassandra"), nil)
	require.Error(t, err)

	cfg := baseConfig(config.DriverMemory)
	cfg.ChildLayout = "sideways"
	_, err = app.Open(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRun_ReturnsForSingleInstanceDrivers(t *testing.T) {
	a, err := app.Open(context.Background(), baseConfig(config.DriverMemory), nil)
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run blocked without any listeners")
	}
}
