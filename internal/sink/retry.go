package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

type RetrySink struct {
	next Sink
	cfg  config.RetryConfig
	name string
}

func NewRetrySink(name string, next Sink, cfg config.RetryConfig) *RetrySink {
	return &RetrySink{
		next: next,
		cfg:  normalize(cfg),
		name: name,
	}
}

func (r *RetrySink) Write(ctx context.Context, batch *types.Batch) error {
	return Retry(ctx, r.name, r.cfg, func(ctx context.Context) error {
		return r.next.Write(ctx, batch)
	})
}

func (r *RetrySink) Close() error {
	return r.next.Close()
}

func normalize(cfg config.RetryConfig) config.RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return cfg
}

// Retry runs fn until it succeeds, the attempts run out or ctx is done,
// doubling the backoff after each failure.
func Retry(ctx context.Context, name string, cfg config.RetryConfig, fn func(ctx context.Context) error) error {
	cfg = normalize(cfg)
	var err error
	for i := 0; i < cfg.MaxAttempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		slog.Warn("Write failed, retrying",
			"target", name,
			"attempt", i+1,
			"max_attempts", cfg.MaxAttempts,
			"error", err)

		if i == cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Backoff * time.Duration(1<<i)): // Exponential backoff
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, err)
}
