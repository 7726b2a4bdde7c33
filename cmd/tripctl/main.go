// Package main is tripctl, the operator tool for a Travelogue deployment:
// schema migrations, exports and imports, cloud backups, the access
// whitelist and development tokens. It reads the same environment as the
// API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkordes/travelogue/internal/app"
	"github.com/pkordes/travelogue/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	// Logs go to stderr so exports can be piped from stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&env{
		cfg: cfg,
		open: func(ctx context.Context) (*app.App, error) {
			return app.Open(ctx, cfg, logger)
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
