package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pkordes/travelogue/internal/metrics"
	"github.com/pkordes/travelogue/internal/middleware"
	"github.com/pkordes/travelogue/openapi"
)

// RouterConfig carries the cross-cutting pieces NewRouter installs.
type RouterConfig struct {
	Log          *slog.Logger
	CORSOrigins  []string
	MaxBodyBytes int64

	// Auth guards every route except /healthz, /metrics and /openapi.yaml.
	// It must attach the caller's identity to the request context.
	Auth func(http.Handler) http.Handler

	// RateLimit runs after Auth, so it can key on the identity. Optional.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter assembles the full HTTP surface.
//
// Middleware is applied in order: RequestID → RealIP → SlogLogger → Metrics
// → Recoverer → CORS → MaxBodySize. RequestID generates a unique trace ID
// per request, RealIP honours X-Forwarded-For behind a proxy, and Recoverer
// turns panics into HTTP 500.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(log))
	r.Use(middleware.NewMetricsHandler())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))
	}

	r.Get("/healthz", GetHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Document)
	})

	r.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth)
		}
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		s.Routes(r)
	})
	return r
}
