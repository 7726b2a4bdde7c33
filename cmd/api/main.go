// Package main is the entry point for the Travelogue API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkordes/travelogue/internal/app"
	"github.com/pkordes/travelogue/internal/auth"
	"github.com/pkordes/travelogue/internal/config"
	"github.com/pkordes/travelogue/internal/handler"
	"github.com/pkordes/travelogue/internal/middleware"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Backends ---------------------------------------------------------
	// Document store, child layout, blob store and the backup service, all
	// picked by config.
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Forward writes made by other instances to local live queries.
	go func() {
		if err := a.Run(ctx); err != nil {
			slog.Error("change listener stopped", "error", err)
		}
	}()

	// --- Auth -------------------------------------------------------------
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		slog.Error("failed to create token verifier", "error", err)
		os.Exit(1)
	}

	// --- Router -----------------------------------------------------------
	srv := handler.NewServer(handler.Deps{
		Trips:       a.Set.Trips,
		Plans:       a.Set.Plans,
		Expenses:    a.Set.Expenses,
		Collections: a.Set.Collections,
		Feeds:       a.Set,
		Backups:     a.Backups,
		Log:         logger,
		CheckOrigin: handler.AllowOrigins(cfg.CORSOrigins),
	})
	router := handler.NewRouter(srv, handler.RouterConfig{
		Log:          logger,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Auth:         middleware.NewAuthHandler(verifier, a.Whitelist, logger),
		RateLimit:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler,
	})

	// --- HTTP Server ------------------------------------------------------
	// WriteTimeout stays unset: live feeds hold their connection open and
	// manage their own write deadlines.
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "docstore", cfg.DocstoreDriver, "layout", cfg.ChildLayout)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
