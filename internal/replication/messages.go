package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nikolay-makurin/entityview/internal/telemetry"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// AttributeApproximateNumberOfMessages is the queue attribute holding its depth.
const AttributeApproximateNumberOfMessages = "ApproximateNumberOfMessages"

var ErrMissingQueueAttribute = errors.New("queue attribute missing")

// MessageManager batches change messages onto the replication queue.
type MessageManager struct {
	queue       Queue
	maxPerBatch int
}

func NewMessageManager(queue Queue, maxMessagesPerPayload int) (*MessageManager, error) {
	if queue == nil {
		return nil, errors.New("replication queue is required")
	}
	if maxMessagesPerPayload <= 0 {
		return nil, fmt.Errorf("max messages per payload must be positive, got %d", maxMessagesPerPayload)
	}
	return &MessageManager{queue: queue, maxPerBatch: maxMessagesPerPayload}, nil
}

// PushChangeMessagesToReplicationQueue publishes messages as JSON arrays of
// at most the configured payload size. An empty list publishes nothing.
func (m *MessageManager) PushChangeMessagesToReplicationQueue(ctx context.Context, messages []types.ChangeMessage) error {
	for start := 0; start < len(messages); start += m.maxPerBatch {
		end := min(start+m.maxPerBatch, len(messages))
		body, err := json.Marshal(messages[start:end])
		if err != nil {
			return fmt.Errorf("failed to encode change messages: %w", err)
		}
		if err := m.queue.Publish(ctx, body); err != nil {
			return fmt.Errorf("failed to publish change messages: %w", err)
		}
		telemetry.MessagesPublished.Add(float64(end - start))
	}
	return nil
}

// GetApproximateNumberOfMessageOnReplicationQueue reads the queue depth. A
// queue that does not report the attribute is an error.
func (m *MessageManager) GetApproximateNumberOfMessageOnReplicationQueue(ctx context.Context) (int64, error) {
	attrs, err := m.queue.Attributes(ctx, AttributeApproximateNumberOfMessages)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue attributes: %w", err)
	}
	raw, ok := attrs[AttributeApproximateNumberOfMessages]
	if !ok {
		return 0, fmt.Errorf("%s: %w", AttributeApproximateNumberOfMessages, ErrMissingQueueAttribute)
	}
	depth, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", AttributeApproximateNumberOfMessages, raw, err)
	}
	telemetry.QueueDepth.Set(float64(depth))
	slog.Debug("Replication queue depth", "messages", depth)
	return depth, nil
}

// DecodeChangeMessages is the inverse of the publish encoding.
func DecodeChangeMessages(body []byte) ([]types.ChangeMessage, error) {
	var messages []types.ChangeMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode change messages: %w", err)
	}
	return messages, nil
}
