// Package queue carries change messages between capture, reconciliation and
// the replication workers over a Redis list. Received payloads are parked on
// a processing list until acknowledged, so a crashed worker loses nothing.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikolay-makurin/entityview/internal/config"
)

// AttributeApproximateNumberOfMessages matches the name the replication
// layer asks for.
const AttributeApproximateNumberOfMessages = "ApproximateNumberOfMessages"

// processingSuffix names the list holding payloads received but not yet acked.
const processingSuffix = ":processing"

// listClient is the part of *redis.Client the queue uses.
type listClient interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value any) *redis.IntCmd
	Close() error
}

type RedisQueue struct {
	client      listClient
	key         string
	processing  string
	pollTimeout time.Duration
}

func NewRedisQueue(cfg config.QueueConfig) (*RedisQueue, error) {
	opt, err := redis.ParseURL(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid queue connection string: %w", err)
	}
	return newRedisQueue(redis.NewClient(opt), cfg.Key, cfg.PollTimeout), nil
}

func newRedisQueue(client listClient, key string, pollTimeout time.Duration) *RedisQueue {
	return &RedisQueue{client: client, key: key, processing: key + processingSuffix, pollTimeout: pollTimeout}
}

func (q *RedisQueue) Publish(ctx context.Context, body []byte) error {
	return q.client.RPush(ctx, q.key, body).Err()
}

// Attributes reports queue attributes. Only the approximate depth is known;
// other names are left out of the result.
func (q *RedisQueue) Attributes(ctx context.Context, names ...string) (map[string]string, error) {
	attrs := make(map[string]string, len(names))
	for _, name := range names {
		if name != AttributeApproximateNumberOfMessages {
			continue
		}
		n, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return nil, err
		}
		attrs[name] = strconv.FormatInt(n, 10)
	}
	return attrs, nil
}

// Receive blocks up to the poll timeout for the next payload and moves it to
// the processing list. It returns nil, nil when the wait times out. The
// payload stays on the processing list until Ack.
func (q *RedisQueue) Receive(ctx context.Context) ([]byte, error) {
	res, err := q.client.BLMove(ctx, q.key, q.processing, "LEFT", "RIGHT", q.pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(res), nil
}

// Ack drops a received payload from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, body []byte) error {
	n, err := q.client.LRem(ctx, q.processing, 1, body).Result()
	if err != nil {
		return fmt.Errorf("ack failed: %w", err)
	}
	if n == 0 {
		slog.Warn("Acked payload was not on the processing list", "queue", q.key, "bytes", len(body))
	}
	return nil
}

// Recover returns payloads left unacknowledged by a previous consumer to the
// head of the queue, oldest first. It returns how many were moved.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover failed: %w", err)
		}
		moved++
	}
}

// Consume feeds payloads to out until ctx is cancelled. Receive errors are
// logged and retried after a short pause.
func (q *RedisQueue) Consume(ctx context.Context, out chan<- []byte) {
	for ctx.Err() == nil {
		body, err := q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to receive from replication queue", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if body == nil {
			continue
		}
		select {
		case out <- body:
		case <-ctx.Done():
			return
		}
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
