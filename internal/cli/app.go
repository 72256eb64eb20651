package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/internal/lock"
	"github.com/nikolay-makurin/entityview/internal/queue"
	"github.com/nikolay-makurin/entityview/internal/replication"
	"github.com/nikolay-makurin/entityview/internal/sink"
	"github.com/nikolay-makurin/entityview/internal/source/postgres"
	"github.com/nikolay-makurin/entityview/internal/telemetry"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// loadConfig loads the config file and starts logging and metrics.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	telemetry.InitLogger(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// app holds the connections shared by the long running commands.
type app struct {
	cfg      *config.Config
	truth    *postgres.Truth
	replica  *sink.PostgresSink
	writer   *sink.BroadcastSink
	queue    *queue.RedisQueue
	lock     *lock.RedisLock
	messages *replication.MessageManager
	manager  *replication.Manager

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.truth, err = postgres.NewTruth(ctx, cfg.Truth.ConnectionString); err != nil {
		return nil, fmt.Errorf("failed to connect to truth: %w", err)
	}
	a.closers = append(a.closers, func() error { a.truth.Close(); return nil })

	if a.replica, err = sink.NewPostgresSink(ctx, cfg.Replica.Postgres); err != nil {
		return nil, fmt.Errorf("failed to init postgres sink: %w", err)
	}
	a.closers = append(a.closers, a.replica.Close)
	targets := []sink.Named{{
		Name: cfg.Replica.Postgres.Name,
		Sink: sink.NewRetrySink(cfg.Replica.Postgres.Name, a.replica, cfg.Replica.Postgres.Retry),
	}}
	slog.Info("Initialized Postgres sink", "name", cfg.Replica.Postgres.Name)

	for _, t := range cfg.Replica.ClickHouse {
		s, err := sink.NewClickHouseSink(t)
		if err != nil {
			return nil, fmt.Errorf("failed to init clickhouse sink %s: %w", t.Name, err)
		}
		a.closers = append(a.closers, s.Close)
		targets = append(targets, sink.Named{Name: t.Name, Sink: sink.NewRetrySink(t.Name, s, t.Retry)})
		slog.Info("Initialized ClickHouse sink", "name", t.Name)
	}
	for _, t := range cfg.Replica.Redis {
		s, err := sink.NewRedisSink(t)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis sink %s: %w", t.Name, err)
		}
		a.closers = append(a.closers, s.Close)
		targets = append(targets, sink.Named{Name: t.Name, Sink: sink.NewRetrySink(t.Name, s, t.Retry)})
		slog.Info("Initialized Redis sink", "name", t.Name)
	}
	a.writer = sink.NewBroadcastSink(targets)

	if a.queue, err = queue.NewRedisQueue(cfg.Queue); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.queue.Close)

	if a.lock, err = lock.NewRedisLock(cfg.Lock); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.lock.Close)

	if a.messages, err = replication.NewMessageManager(a.queue, cfg.Queue.MaxMessagesPerPayload); err != nil {
		return nil, err
	}

	a.manager, err = replication.NewManager(cfg.Replication, replication.Dependencies{
		Providers: map[types.ReplicationType]replication.DataProvider{
			types.ReplicationEntity:     a.truth.Provider(types.ReplicationEntity),
			types.ReplicationSubmission: a.truth.Provider(types.ReplicationSubmission),
		},
		Writer:    a.writer,
		Replica:   a.replica,
		Lock:      a.lock,
		Scopes:    replication.NewCachedScopeResolver(a.truth, cfg.Replication.ScopeCacheTTL, cfg.Replication.ScopeCacheSize),
		Publisher: a.messages,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
