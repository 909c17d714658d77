// Package store reads building membership and device tokens from the
// Supabase Postgres database using the statements prepared in package db.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buildingpulse/push-fanout/internal/db"
	"github.com/buildingpulse/push-fanout/internal/fanout"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements fanout.Directory and the push token registry.
type Store struct {
	q Querier
}

// New creates a Store over a pool.
func New(q Querier) *Store {
	return &Store{q: q}
}

// CallerProfile returns the caller's building membership, or nil when the
// user has no profile row.
func (s *Store) CallerProfile(ctx context.Context, userID string) (*fanout.CallerIdentity, error) {
	var (
		id         string
		buildingID *string
		role       *string
	)
	err := s.q.QueryRow(ctx, db.StmtCallerProfile, userID).Scan(&id, &buildingID, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("caller profile: %w", err)
	}

	caller := &fanout.CallerIdentity{UserID: id, Role: fanout.RoleResident}
	if buildingID != nil {
		caller.BuildingID = *buildingID
	}
	if role != nil && *role != "" {
		caller.Role = fanout.Role(*role)
	}
	return caller, nil
}

// BuildingRecipients returns every (member, token) pair in the building
// with preferences resolved. No devices is an empty slice, not an error.
func (s *Store) BuildingRecipients(ctx context.Context, buildingID string) ([]fanout.RecipientRow, error) {
	rows, err := s.q.Query(ctx, db.StmtBuildingRecipients, buildingID)
	if err != nil {
		return nil, fmt.Errorf("%w: query building recipients: %w", fanout.ErrResolutionFailed, err)
	}
	defer rows.Close()

	recipients := make([]fanout.RecipientRow, 0)
	for rows.Next() {
		var (
			userID                          string
			token                           *string
			issues, announcements, statuses *bool
		)
		if err := rows.Scan(&userID, &token, &issues, &announcements, &statuses); err != nil {
			return nil, fmt.Errorf("%w: scan recipient: %w", fanout.ErrResolutionFailed, err)
		}
		r := fanout.RecipientRow{
			UserID:      userID,
			Preferences: fanout.ResolvePreferences(issues, announcements, statuses),
		}
		if token != nil {
			r.DeviceToken = *token
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read recipients: %w", fanout.ErrResolutionFailed, err)
	}
	return recipients, nil
}

// RegisterToken upserts a device token for the user.
func (s *Store) RegisterToken(ctx context.Context, userID, token, deviceType string) error {
	if _, err := s.q.Exec(ctx, db.StmtUpsertPushToken, userID, token, deviceType); err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

// UnregisterToken removes a device token. Removing an unknown token is not
// an error.
func (s *Store) UnregisterToken(ctx context.Context, userID, token string) error {
	if _, err := s.q.Exec(ctx, db.StmtDeletePushToken, userID, token); err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	return nil
}
