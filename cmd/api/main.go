// Command api is the building push fan-out server.
//
// Usage:
//
//	push-api
//	API_PORT=8080 push-api

// @title Building Push Fan-out API
// @version 1.0.0
// @description Fans building events (new issues, status changes, announcements) out to residents' devices via Expo push.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/buildingpulse/push-fanout/docs" // swagger docs
	"github.com/buildingpulse/push-fanout/internal/api"
	"github.com/buildingpulse/push-fanout/internal/api/handler"
	"github.com/buildingpulse/push-fanout/internal/auth"
	"github.com/buildingpulse/push-fanout/internal/config"
	"github.com/buildingpulse/push-fanout/internal/db"
	"github.com/buildingpulse/push-fanout/internal/expo"
	"github.com/buildingpulse/push-fanout/internal/fanout"
	"github.com/buildingpulse/push-fanout/internal/store"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Fan-out service
	verifier := auth.NewVerifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.AuthTimeout, logger)
	directory := store.New(pool.Pool)
	transport := expo.NewClient(cfg.ExpoPushURL, cfg.ExpoAccessToken, cfg.PushUpstreamTimeout, cfg.PushRequestsPerSecond, logger)
	svc := fanout.NewService(verifier, directory, transport, fanout.Options{
		MaxBatchSize:    cfg.PushBatchSize,
		Concurrency:     cfg.PushDispatchConcurrency,
		DispatchTimeout: cfg.DispatchTimeout,
	}, logger)
	logger.Info("Fan-out service ready",
		"batch_size", cfg.PushBatchSize,
		"concurrency", cfg.PushDispatchConcurrency,
		"dispatch_timeout", cfg.DispatchTimeout)

	// Create router
	h := handler.New(handler.Deps{
		Sender:   svc,
		Verifier: verifier,
		Tokens:   directory,
		DB:       pool,
		Logger:   logger,
	})
	router := api.NewRouter(h, cfg, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting push fan-out API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
