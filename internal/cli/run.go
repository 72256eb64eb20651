package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nikolay-makurin/entityview/internal/pipeline"
	"github.com/nikolay-makurin/entityview/internal/source/postgres"
	"github.com/nikolay-makurin/entityview/internal/telemetry"
)

func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "capture",
		Short:        "Publish truth changes from logical replication to the replication queue",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd.Context(), rootOpts)
		},
	}
}

func runCapture(ctx context.Context, opts *RootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCapture(); err != nil {
		return err
	}
	telemetry.Init(cfg.Telemetry.Address)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("Starting capture", "slot", cfg.Truth.SlotName, "publication", cfg.Truth.Publication)
	src := postgres.NewSource(cfg.Truth, pipeline.NewCheckpointManager(0), a.messages)
	if err := src.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	slog.Info("Capture stopped")
	return nil
}

func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "worker",
		Short:        "Apply change messages from the replication queue to the replicas",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), rootOpts)
		},
	}
}

func runWorker(ctx context.Context, opts *RootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	telemetry.Init(cfg.Telemetry.Address)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	recovered, err := a.queue.Recover(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		slog.Info("Requeued unacknowledged payloads", "queue", cfg.Queue.Key, "count", recovered)
	}

	slog.Info("Starting worker", "queue", cfg.Queue.Key, "workers", cfg.Pipeline.WorkerCount)
	payloads := make(chan []byte, cfg.Pipeline.WorkerCount)
	go a.queue.Consume(ctx, payloads)

	pipeline.NewDispatcher(cfg.Pipeline, a.manager, a.queue).Start(ctx, payloads)
	slog.Info("Worker stopped")
	return nil
}

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Views []int64
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair replica drift for views",
		Long: `Compare salted checksums of each view's scope in truth and in the replica
and publish every difference to the replication queue.

A view is skipped while its reconciliation lock has not expired.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts)
		},
	}

	cmd.Flags().Int64SliceVar(&opts.Views, "view", nil, "view ids to reconcile")
	_ = cmd.MarkFlagRequired("view")

	return cmd
}

func runReconcile(ctx context.Context, opts *ReconcileOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, viewID := range opts.Views {
		if err := a.manager.Reconcile(ctx, viewID); err != nil {
			slog.Error("Reconciliation failed", "view_id", viewID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reconciliations failed", failed, len(opts.Views))
	}
	return nil
}
