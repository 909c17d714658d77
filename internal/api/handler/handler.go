// Package handler provides HTTP handlers for all API endpoints.
// Handlers decode and validate the wire format, then hand off to the fan-out
// service or the token registry.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/buildingpulse/push-fanout/internal/api/respond"
	"github.com/buildingpulse/push-fanout/internal/fanout"
)

// maxBodyBytes caps inbound JSON bodies.
const maxBodyBytes = 64 << 10

// Sender runs one fan-out invocation.
type Sender interface {
	Send(ctx context.Context, credential string, req fanout.Request) (fanout.Summary, error)
}

// TokenRegistry stores device tokens for the calling user.
type TokenRegistry interface {
	RegisterToken(ctx context.Context, userID, token, deviceType string) error
	UnregisterToken(ctx context.Context, userID, token string) error
}

// HealthChecker reports database reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Sender   Sender
	Verifier fanout.IdentityVerifier
	Tokens   TokenRegistry
	DB       HealthChecker
	Logger   *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	sender   Sender
	verifier fanout.IdentityVerifier
	tokens   TokenRegistry
	db       HealthChecker
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sender:   d.Sender,
		verifier: d.Verifier,
		tokens:   d.Tokens,
		db:       d.DB,
		logger:   logger.With("component", "api"),
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns service name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Building Push Fan-out",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// MethodNotAllowed answers requests with the wrong HTTP method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// NotFound answers unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
}
