// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildingpulse/push-fanout/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	if cfg.DBSearchPath != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.DBSearchPath
	}

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, StmtHealthCheck).Scan(&n)
}

// Statement names shared with the store package.
const (
	StmtHealthCheck        = "health_check"
	StmtCallerProfile      = "caller_profile"
	StmtBuildingRecipients = "building_recipients"
	StmtUpsertPushToken    = "upsert_push_token"
	StmtDeletePushToken    = "delete_push_token"
)

// registerPreparedStatements registers every statement the API and CLI use.
// Tables follow the Supabase schema: profiles, push_tokens, user_settings.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		StmtHealthCheck: "SELECT 1",

		// Caller identity: building membership and role
		StmtCallerProfile: "SELECT id::text, building_id::text, role FROM profiles WHERE id = $1",

		// Recipient resolution: inner join on building, left join for preferences
		StmtBuildingRecipients: `SELECT pt.user_id::text, pt.token,
				us.push_issues, us.push_announcements, us.push_status_updates
			FROM push_tokens pt
			JOIN profiles p ON p.id = pt.user_id
			LEFT JOIN user_settings us ON us.user_id = pt.user_id
			WHERE p.building_id = $1
			ORDER BY pt.user_id, pt.token`,

		// Token registry
		StmtUpsertPushToken: `INSERT INTO push_tokens (user_id, token, device_type)
			VALUES ($1, $2, NULLIF($3, ''))
			ON CONFLICT (user_id, token) DO UPDATE SET device_type = EXCLUDED.device_type`,
		StmtDeletePushToken: "DELETE FROM push_tokens WHERE user_id = $1 AND token = $2",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
