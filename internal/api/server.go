package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/buildingpulse/push-fanout/internal/api/handler"
	"github.com/buildingpulse/push-fanout/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LogMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "apikey", "x-client-info"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Get("/health", h.HealthCheck)
	r.Get("/health/db", h.HealthCheckDB)

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// Fan-out. The /functions/v1 path keeps existing edge-function callers working.
	r.Post("/api/v1/send-push", h.SendPush)
	r.Post("/functions/v1/send-push", h.SendPush)

	// Device token registry
	r.Post("/api/v1/push-tokens", h.RegisterPushToken)
	r.Delete("/api/v1/push-tokens", h.UnregisterPushToken)

	return r
}
