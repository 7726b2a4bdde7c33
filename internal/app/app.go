// Package app opens the configured backends and assembles the stores and
// services shared by the API server and tripctl. No business logic belongs
// here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/backup"
	"github.com/pkordes/travelogue/internal/blob"
	"github.com/pkordes/travelogue/internal/config"
	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/docstore/badger"
	"github.com/pkordes/travelogue/internal/docstore/memory"
	"github.com/pkordes/travelogue/internal/docstore/mongo"
	"github.com/pkordes/travelogue/internal/docstore/postgres"
	"github.com/pkordes/travelogue/internal/docstore/sqlite"
	"github.com/pkordes/travelogue/internal/ingest"
	"github.com/pkordes/travelogue/internal/store"
	"github.com/pkordes/travelogue/migrations"
)

// App holds every long-lived dependency built from a Config.
type App struct {
	Docs      docstore.Store
	Pipeline  *ingest.Pipeline
	Set       *store.Set
	Blobs     blob.Store
	Backups   *backup.Service
	Whitelist *auth.Whitelist

	log     *slog.Logger
	pool    *pgxpool.Pool
	runners []func(context.Context) error
}

// Open connects to the configured document store and blob store and wires
// the stores and services on top of them. Call Close when done.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{log: log}

	if err := a.openDocs(ctx, cfg); err != nil {
		return nil, err
	}

	a.Pipeline = ingest.New(log)
	set, err := store.NewSet(a.Docs, store.Layout(cfg.ChildLayout), a.Pipeline)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.Open: %w", err)
	}
	a.Set = set

	a.Blobs, err = blob.Open(ctx, cfg.Blob)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.Open: %w", err)
	}
	log.Info("blob store ready", "driver", a.Blobs.Driver())

	a.Backups = backup.New(a.Docs, backup.Children{
		Plans:       set.Backends.Plans,
		Expenses:    set.Backends.Expenses,
		Collections: set.Backends.Collections,
	}, a.Pipeline, a.Blobs, log)
	a.Whitelist = auth.NewWhitelist(a.Docs)
	return a, nil
}

func (a *App) openDocs(ctx context.Context, cfg config.Config) error {
	switch cfg.DocstoreDriver {
	case config.DriverPostgres:
		// pgxpool.New does not open connections; Ping verifies the DB is
		// reachable before accepting traffic.
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("app.Open: create database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("app.Open: connect to database: %w", err)
		}
		s := postgres.New(pool, a.log)
		a.pool = pool
		a.Docs = s
		a.runners = append(a.runners, func(ctx context.Context) error { return s.Run(ctx, pool) })

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, a.log)
		if err != nil {
			return fmt.Errorf("app.Open: %w", err)
		}
		a.Docs = s

	case config.DriverMongo:
		s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, a.log)
		if err != nil {
			return fmt.Errorf("app.Open: %w", err)
		}
		a.Docs = s
		a.runners = append(a.runners, s.Run)

	case config.DriverBadger:
		s, err := badger.Open(badger.Config{Path: cfg.BadgerPath, Logger: a.log}, a.log)
		if err != nil {
			return fmt.Errorf("app.Open: %w", err)
		}
		a.Docs = s

	case config.DriverMemory:
		a.Docs = memory.New(a.log)

	default:
		return fmt.Errorf("app.Open: unknown docstore driver %q", cfg.DocstoreDriver)
	}
	a.log.Info("document store ready", "driver", cfg.DocstoreDriver)
	return nil
}

// Migrate applies pending schema migrations. Only postgres needs it; the
// sqlite driver migrates on open and the others are schemaless.
func (a *App) Migrate(ctx context.Context) error {
	if a.pool == nil {
		a.log.Info("migrate: nothing to do for this driver")
		return nil
	}
	db := stdlib.OpenDBFromPool(a.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("app.Migrate: create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("app.Migrate: %w", err)
	}
	for _, r := range results {
		a.log.Info("migrate: applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Run forwards changes made by other instances to local live queries until
// ctx is cancelled. It returns immediately for single-instance drivers.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range a.runners {
		g.Go(func() error { return run(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app.Run: %w", err)
	}
	return nil
}

// Close releases the document store and the database pool.
func (a *App) Close() {
	if a.Docs != nil {
		if err := a.Docs.Close(); err != nil {
			a.log.Warn("close document store", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
