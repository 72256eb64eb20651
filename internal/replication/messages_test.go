package replication

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

func TestNewMessageManager(t *testing.T) {
	_, err := NewMessageManager(nil, 10)
	assert.Error(t, err)

	_, err = NewMessageManager(&fakeQueue{}, 0)
	assert.Error(t, err)
}

func TestPushChangeMessages(t *testing.T) {
	q := &fakeQueue{}
	mm, err := NewMessageManager(q, 2)
	require.NoError(t, err)

	var messages []types.ChangeMessage
	for id := int64(1); id <= 5; id++ {
		messages = append(messages, change(types.ChangeUpdate, types.ObjectEntity, id))
	}
	require.NoError(t, mm.PushChangeMessagesToReplicationQueue(context.Background(), messages))

	require.Len(t, q.bodies, 3)
	assert.JSONEq(t, `[{"changeType":"UPDATE","objectType":"ENTITY","objectId":1},{"changeType":"UPDATE","objectType":"ENTITY","objectId":2}]`,
		string(q.bodies[0]))

	var decoded []types.ChangeMessage
	for _, body := range q.bodies {
		page, err := DecodeChangeMessages(body)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page), 2)
		decoded = append(decoded, page...)
	}
	assert.Equal(t, messages, decoded)
}

func TestPushChangeMessagesEmpty(t *testing.T) {
	q := &fakeQueue{}
	mm, err := NewMessageManager(q, 10)
	require.NoError(t, err)

	require.NoError(t, mm.PushChangeMessagesToReplicationQueue(context.Background(), nil))
	assert.Empty(t, q.bodies)
}

func TestPushChangeMessagesError(t *testing.T) {
	mm, err := NewMessageManager(&fakeQueue{err: errors.New("down")}, 10)
	require.NoError(t, err)

	err = mm.PushChangeMessagesToReplicationQueue(context.Background(), []types.ChangeMessage{change(types.ChangeCreate, types.ObjectEntity, 1)})
	assert.ErrorContains(t, err, "down")
}

func TestApproximateNumberOfMessages(t *testing.T) {
	tests := []struct {
		name    string
		queue   *fakeQueue
		want    int64
		wantErr error
	}{
		{"present", &fakeQueue{attrs: map[string]string{AttributeApproximateNumberOfMessages: "42"}}, 42, nil},
		{"missing", &fakeQueue{attrs: map[string]string{}}, 0, ErrMissingQueueAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm, err := NewMessageManager(tt.queue, 10)
			require.NoError(t, err)

			got, err := mm.GetApproximateNumberOfMessageOnReplicationQueue(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	mm, err := NewMessageManager(&fakeQueue{attrs: map[string]string{AttributeApproximateNumberOfMessages: "many"}}, 10)
	require.NoError(t, err)
	_, err = mm.GetApproximateNumberOfMessageOnReplicationQueue(context.Background())
	assert.Error(t, err)
}

func TestDecodeChangeMessagesInvalid(t *testing.T) {
	_, err := DecodeChangeMessages([]byte("{"))
	assert.Error(t, err)
}
