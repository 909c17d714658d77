// Command pushctl is the operator CLI for the building push fan-out.
//
// Usage:
//
//	pushctl preview --building <uuid> --type announcement
//	pushctl preview --building <uuid> --type issue_created --exclude <user-uuid>
//	pushctl send --token $JWT --building <uuid> --type announcement --title "Lift" --body "Back in service"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/buildingpulse/push-fanout/internal/auth"
	"github.com/buildingpulse/push-fanout/internal/config"
	"github.com/buildingpulse/push-fanout/internal/db"
	"github.com/buildingpulse/push-fanout/internal/expo"
	"github.com/buildingpulse/push-fanout/internal/fanout"
	"github.com/buildingpulse/push-fanout/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pushctl",
		Short:         "Building push fan-out operator CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(previewCmd())
	root.AddCommand(sendCmd())
	return root
}

// --------------------------------------------------------------------------
// Shared flags
// --------------------------------------------------------------------------

type requestFlags struct {
	category string
	building string
	title    string
	body     string
	data     string
	exclude  string
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.building, "building", "", "Target building ID")
	cmd.Flags().StringVar(&f.category, "type", string(fanout.Announcement), "Notification type: issue_created, issue_status or announcement")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "User ID to leave out")
	_ = cmd.MarkFlagRequired("building")
}

// request builds a fan-out request from the flags. data must be a JSON object.
func (f *requestFlags) request() (fanout.Request, error) {
	category, err := fanout.ParseCategory(f.category)
	if err != nil {
		return fanout.Request{}, err
	}
	var payload map[string]any
	if f.data != "" {
		if err := json.Unmarshal([]byte(f.data), &payload); err != nil {
			return fanout.Request{}, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	return fanout.Request{
		Category:      category,
		BuildingID:    f.building,
		Title:         f.title,
		Body:          f.body,
		Payload:       payload,
		ExcludeUserID: f.exclude,
	}, nil
}

// --------------------------------------------------------------------------
// preview command
// --------------------------------------------------------------------------

func previewCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how a notification would be batched, without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *fanout.Service) error {
				plan, err := svc.Plan(ctx, req)
				if err != nil {
					return err
				}
				return writePlan(cmd.OutOrStdout(), plan)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

type planReport struct {
	Resolved   int   `json:"resolved_rows"`
	Recipients int   `json:"recipients"`
	Batches    int   `json:"batches"`
	BatchSizes []int `json:"batch_sizes"`
}

func writePlan(w io.Writer, plan fanout.Plan) error {
	report := planReport{
		Resolved:   plan.Resolved,
		Recipients: plan.Tokens(),
		Batches:    len(plan.Batches),
		BatchSizes: make([]int, len(plan.Batches)),
	}
	for i, b := range plan.Batches {
		report.BatchSizes[i] = len(b)
	}
	return writeJSON(w, report)
}

// --------------------------------------------------------------------------
// send command
// --------------------------------------------------------------------------

func sendCmd() *cobra.Command {
	var (
		flags requestFlags
		token string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification as the user owning --token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("PUSHCTL_TOKEN")
			}
			req, err := flags.request()
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *fanout.Service) error {
				summary, err := svc.Send(ctx, token, req)
				if err != nil {
					return err
				}
				logger.Info("Send finished",
					"sent", summary.RecipientsSent,
					"batches", summary.BatchCount,
					"failed_batches", summary.FailedBatches())
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&token, "token", "", "Caller access token (default $PUSHCTL_TOKEN)")
	cmd.Flags().StringVar(&flags.title, "title", "", "Notification title")
	cmd.Flags().StringVar(&flags.body, "body", "", "Notification body")
	cmd.Flags().StringVar(&flags.data, "data", "", "Extra payload as a JSON object")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func withService(fn func(ctx context.Context, svc *fanout.Service) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	svc := fanout.NewService(
		auth.NewVerifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.AuthTimeout, logger),
		store.New(pool.Pool),
		expo.NewClient(cfg.ExpoPushURL, cfg.ExpoAccessToken, cfg.PushUpstreamTimeout, cfg.PushRequestsPerSecond, logger),
		fanout.Options{
			MaxBatchSize:    cfg.PushBatchSize,
			Concurrency:     cfg.PushDispatchConcurrency,
			DispatchTimeout: cfg.DispatchTimeout,
		},
		logger,
	)
	return fn(ctx, svc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
