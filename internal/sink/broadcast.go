package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikolay-makurin/entityview/internal/telemetry"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// Named pairs a sink with the label used for its metrics.
type Named struct {
	Name string
	Sink Sink
}

// BroadcastSink writes to multiple sinks in parallel.
// It returns an error if ANY sink fails.
type BroadcastSink struct {
	sinks []Named
}

func NewBroadcastSink(sinks []Named) *BroadcastSink {
	return &BroadcastSink{sinks: sinks}
}

// Write fans the batch out. The first failure cancels the remaining writes;
// the batch is safe to retry as a whole.
func (b *BroadcastSink) Write(ctx context.Context, batch *types.Batch) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range b.sinks {
		g.Go(func() error {
			start := time.Now()
			err := s.Sink.Write(gctx, batch)
			telemetry.SinkLatency.WithLabelValues(s.Name).Observe(time.Since(start).Seconds())
			telemetry.BatchSize.WithLabelValues(s.Name).Observe(float64(len(batch.Rows)))
			if err != nil {
				return fmt.Errorf("sink %s: %w", s.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("broadcast failed: %w", err)
	}
	return nil
}

func (b *BroadcastSink) Close() error {
	var errs []error
	for _, s := range b.sinks {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close failed: %w", errors.Join(errs...))
	}
	return nil
}
