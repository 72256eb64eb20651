package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

type fakeKeys struct {
	ttl map[string]time.Duration
}

func (f *fakeKeys) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.ttl[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttl[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeKeys) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKeys) Close() error { return nil }

func TestRedisLock(t *testing.T) {
	fake := &fakeKeys{ttl: map[string]time.Duration{}}
	l := newRedisLock(fake, config.LockConfig{Prefix: "lock", Timeout: time.Minute, RunTimeout: time.Hour})
	ctx := context.Background()

	expired, err := l.IsLockExpired(ctx, types.ReplicationEntity, 7)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, time.Hour, fake.ttl["lock:ENTITY:7"])

	expired, err = l.IsLockExpired(ctx, types.ReplicationEntity, 7)
	require.NoError(t, err)
	assert.False(t, expired, "second claim must see the held lock")

	// Other views and types are independent.
	expired, err = l.IsLockExpired(ctx, types.ReplicationSubmission, 7)
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, l.ResetLock(ctx, types.ReplicationEntity, 7))
	assert.Equal(t, time.Minute, fake.ttl["lock:ENTITY:7"])
}
