package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// IdentityVerifier turns a bearer credential into a user ID. Failures wrap
// ErrUnauthenticated (bad credential) or ErrBackend (verifier unavailable).
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (userID string, err error)
}

// Directory is the read side of the building data store.
type Directory interface {
	// CallerProfile returns nil, nil when the user has no profile.
	CallerProfile(ctx context.Context, userID string) (*CallerIdentity, error)
	BuildingRecipients(ctx context.Context, buildingID string) ([]RecipientRow, error)
}

// Service runs fan-out invocations. It holds configuration and clients
// only, so one Service is safe for concurrent use.
type Service struct {
	verifier  IdentityVerifier
	directory Directory
	transport Transport
	opts      Options
	logger    *slog.Logger
}

// NewService wires the collaborators with explicit options.
func NewService(verifier IdentityVerifier, directory Directory, transport Transport, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier:  verifier,
		directory: directory,
		transport: transport,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "fanout"),
	}
}

// Send authenticates the caller, authorizes req and fans it out to every
// eligible device in the building.
func (s *Service) Send(ctx context.Context, credential string, req Request) (Summary, error) {
	if err := req.Validate(); err != nil {
		return Summary{}, err
	}
	if s.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DispatchTimeout)
		defer cancel()
	}

	caller, err := s.Identify(ctx, credential)
	if err != nil {
		return Summary{}, err
	}
	if err := Authorize(caller, req); err != nil {
		s.logger.Info("fan-out rejected",
			"user_id", caller.UserID, "building_id", req.BuildingID,
			"type", req.Category, "reason", err)
		return Summary{}, err
	}

	plan, err := s.Plan(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	if len(plan.Batches) == 0 {
		s.logger.Info("fan-out complete, no recipients",
			"building_id", req.BuildingID, "type", req.Category, "resolved", plan.Resolved)
		return Aggregate(0, nil), nil
	}

	data := req.Payload
	if data == nil {
		data = map[string]any{}
	}
	d := &dispatcher{transport: s.transport, concurrency: s.opts.Concurrency, logger: s.logger}
	outcomes := d.run(ctx, plan.Batches, content{title: req.Title, body: req.Body, data: data})
	summary := Aggregate(len(plan.Batches), outcomes)

	s.logger.Info("fan-out complete",
		"building_id", req.BuildingID,
		"type", req.Category,
		"sent", summary.RecipientsSent,
		"batches", summary.BatchCount,
		"failed_batches", summary.FailedBatches(),
		"incomplete", summary.Incomplete)
	return summary, nil
}

// Identify verifies the credential and loads the caller's profile. A user
// without a profile yields a CallerIdentity with no building.
func (s *Service) Identify(ctx context.Context, credential string) (*CallerIdentity, error) {
	userID, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}
	caller, err := s.directory.CallerProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load caller profile: %w", ErrBackend, err)
	}
	if caller == nil {
		return &CallerIdentity{UserID: userID}, nil
	}
	return caller, nil
}

// Plan resolves, filters and batches the recipients of req without
// contacting the transport. It performs no authorization.
func (s *Service) Plan(ctx context.Context, req Request) (Plan, error) {
	rows, err := s.directory.BuildingRecipients(ctx, req.BuildingID)
	if err != nil {
		if errors.Is(err, ErrResolutionFailed) {
			return Plan{}, err
		}
		return Plan{}, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	tokens := FilterTokens(rows, req)
	return Plan{
		Resolved: len(rows),
		Batches:  Partition(tokens, s.opts.MaxBatchSize),
	}, nil
}
