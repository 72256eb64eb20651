package pipeline

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/internal/replication"
	"github.com/nikolay-makurin/entityview/internal/sink"
	"github.com/nikolay-makurin/entityview/internal/telemetry"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// Replicator applies a batch of change messages to the replica.
type Replicator interface {
	Replicate(ctx context.Context, changes []types.ChangeMessage) error
}

// Acker acknowledges a queue payload once it no longer needs redelivery.
type Acker interface {
	Ack(ctx context.Context, body []byte) error
}

// delivery tracks one queue payload across the workers its changes were
// routed to. It is acked when the last change is applied, unless a batch
// holding one of them failed; the payload then stays unacked for redelivery.
type delivery struct {
	body    []byte
	pending atomic.Int32
	failed  atomic.Bool
	acker   Acker
}

func (d *delivery) done(ctx context.Context, ok bool) {
	if !ok {
		d.failed.Store(true)
	}
	if d.pending.Add(-1) > 0 || d.failed.Load() {
		return
	}
	d.ack(ctx)
}

func (d *delivery) ack(ctx context.Context) {
	if d.acker == nil {
		return
	}
	if err := d.acker.Ack(ctx, d.body); err != nil {
		slog.Error("Failed to ack payload", "error", err, "bytes", len(d.body))
	}
}

// envelope is a change on its way to a worker.
type envelope struct {
	change   types.ChangeMessage
	delivery *delivery
}

// Dispatcher decodes queue payloads and routes each change to a worker by
// object, so changes to one object are applied in queue order.
type Dispatcher struct {
	cfg     config.PipelineConfig
	workers []*Worker
	acker   Acker
}

// NewDispatcher builds the worker pool. acker may be nil when payloads need
// no acknowledgement.
func NewDispatcher(cfg config.PipelineConfig, r Replicator, acker Acker) *Dispatcher {
	workers := make([]*Worker, cfg.WorkerCount)
	for i := range workers {
		workers[i] = NewWorker(i, cfg, r)
	}
	return &Dispatcher{cfg: cfg, workers: workers, acker: acker}
}

// Start blocks until in is closed or ctx is done and every worker has
// flushed its last batch.
func (d *Dispatcher) Start(ctx context.Context, in <-chan []byte) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	go func() {
		defer func() {
			for _, w := range d.workers {
				close(w.in)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-in:
				if !ok {
					return
				}
				d.dispatch(ctx, body)
			}
		}
	}()

	wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, body []byte) {
	dl := &delivery{body: body, acker: d.acker}
	messages, err := replication.DecodeChangeMessages(body)
	if err != nil {
		slog.Error("Dropping undecodable payload", "error", err, "bytes", len(body))
		dl.ack(ctx)
		return
	}
	if len(messages) == 0 {
		dl.ack(ctx)
		return
	}
	dl.pending.Store(int32(len(messages)))
	for _, m := range messages {
		w := d.workers[d.route(m)]
		select {
		case w.in <- envelope{change: m, delivery: dl}:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) route(m types.ChangeMessage) uint32 {
	return hash(string(m.ObjectType)+":"+strconv.FormatInt(m.ObjectID, 10)) % uint32(len(d.workers))
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

type Worker struct {
	id         int
	cfg        config.PipelineConfig
	replicator Replicator
	in         chan envelope
	batch      []types.ChangeMessage
	deliveries []*delivery
}

func NewWorker(id int, cfg config.PipelineConfig, r Replicator) *Worker {
	return &Worker{
		id:         id,
		cfg:        cfg,
		replicator: r,
		in:         make(chan envelope, cfg.BufferSize),
		batch:      make([]types.ChangeMessage, 0, cfg.BatchSize),
		deliveries: make([]*delivery, 0, cfg.BatchSize),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return
		case e, ok := <-w.in:
			if !ok {
				w.flush(ctx)
				return
			}
			w.batch = append(w.batch, e.change)
			w.deliveries = append(w.deliveries, e.delivery)
			if len(w.batch) >= w.cfg.BatchSize {
				w.flush(ctx)
			}
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// flush replicates the pending batch and settles the payloads it came from.
// A batch that still fails after the configured retries is dropped here; its
// payloads stay unacked and are redelivered after the queue is recovered.
func (w *Worker) flush(ctx context.Context) {
	if len(w.batch) == 0 {
		return
	}

	start := time.Now()
	err := sink.Retry(ctx, "replicate", w.cfg.Retry, func(ctx context.Context) error {
		return w.replicator.Replicate(ctx, w.batch)
	})
	telemetry.SinkLatency.WithLabelValues("replicate").Observe(time.Since(start).Seconds())
	telemetry.BatchSize.WithLabelValues("replicate").Observe(float64(len(w.batch)))

	if err != nil {
		slog.Error("Dropping replication batch", "worker", w.id, "messages", len(w.batch), "error", err)
	}
	for _, dl := range w.deliveries {
		dl.done(ctx, err == nil)
	}
	w.batch = w.batch[:0]
	clear(w.deliveries)
	w.deliveries = w.deliveries[:0]
}
