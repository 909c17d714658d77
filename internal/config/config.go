// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/pushctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Upstream transport limits
// --------------------------------------------------------------------------

const (
	// DefaultExpoPushURL is the Expo push send endpoint.
	DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

	// MaxPushBatchSize is Expo's documented per-request message limit.
	MaxPushBatchSize = 100
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBSearchPath   string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Supabase auth
	SupabaseURL     string
	SupabaseAnonKey string
	AuthTimeout     time.Duration

	// Push transport
	ExpoPushURL             string
	ExpoAccessToken         string
	PushBatchSize           int
	PushDispatchConcurrency int
	PushRequestsPerSecond   float64
	PushUpstreamTimeout     time.Duration
	DispatchTimeout         time.Duration // 0 = no invocation budget

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("SUPABASE_DB_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or SUPABASE_DB_URL must be set")
	}

	supabaseURL := strings.TrimRight(envOr("SUPABASE_URL", ""), "/")
	anonKey := envOr("SUPABASE_ANON_KEY", "")
	if supabaseURL == "" || anonKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBSearchPath:   envOr("DB_SEARCH_PATH", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		SupabaseURL:     supabaseURL,
		SupabaseAnonKey: anonKey,
		AuthTimeout:     envDuration("AUTH_TIMEOUT", 10*time.Second),

		ExpoPushURL:             envOr("EXPO_PUSH_URL", DefaultExpoPushURL),
		ExpoAccessToken:         envOr("EXPO_ACCESS_TOKEN", ""),
		PushBatchSize:           ClampBatchSize(envInt("PUSH_BATCH_SIZE", MaxPushBatchSize)),
		PushDispatchConcurrency: max(envInt("PUSH_DISPATCH_CONCURRENCY", 1), 1),
		PushRequestsPerSecond:   envFloat("PUSH_REQUESTS_PER_SECOND", 0),
		PushUpstreamTimeout:     envDuration("PUSH_UPSTREAM_TIMEOUT", 15*time.Second),
		DispatchTimeout:         envDuration("DISPATCH_TIMEOUT", 0),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:8081",
			"http://localhost:19006",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ClampBatchSize keeps n within 1..MaxPushBatchSize.
func ClampBatchSize(n int) int {
	if n < 1 || n > MaxPushBatchSize {
		return MaxPushBatchSize
	}
	return n
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("15s") or bare seconds ("15").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
