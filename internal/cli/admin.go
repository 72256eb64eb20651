package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nikolay-makurin/entityview/internal/queue"
	"github.com/nikolay-makurin/entityview/internal/replication"
	"github.com/nikolay-makurin/entityview/internal/sink"
)

func NewQueueDepthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "queue-depth",
		Short:        "Print the approximate number of payloads on the replication queue",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			q, err := queue.NewRedisQueue(cfg.Queue)
			if err != nil {
				return err
			}
			defer q.Close()

			mm, err := replication.NewMessageManager(q, cfg.Queue.MaxMessagesPerPayload)
			if err != nil {
				return err
			}
			depth, err := mm.GetApproximateNumberOfMessageOnReplicationQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), depth)
			return nil
		},
	}
}

func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "schema",
		Short:        "Create the replica tables on every configured replica",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pg, err := sink.NewPostgresSink(ctx, cfg.Replica.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
			slog.Info("Replica schema ready", "target", cfg.Replica.Postgres.Name)

			for _, t := range cfg.Replica.ClickHouse {
				ch, err := sink.NewClickHouseSink(t)
				if err != nil {
					return err
				}
				err = ch.EnsureSchema(ctx)
				ch.Close()
				if err != nil {
					return err
				}
				slog.Info("Replica schema ready", "target", t.Name)
			}
			return nil
		},
	}
}
