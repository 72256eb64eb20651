package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

func TestCachedScopeResolver(t *testing.T) {
	next := &fakeScopes{scopes: map[int64]types.Scope{
		1: {ViewID: 1, Type: types.ReplicationEntity, ContainerIDs: []int64{10, 11}},
	}}
	c := NewCachedScopeResolver(next, time.Minute, 100)
	ctx := context.Background()

	for range 3 {
		s, err := c.ResolveScope(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{10, 11}, s.ContainerIDs)
	}
	assert.Equal(t, 1, next.calls)

	_, err := c.ResolveScope(ctx, 2)
	assert.Error(t, err)
	_, err = c.ResolveScope(ctx, 2)
	assert.Error(t, err)
	assert.Equal(t, 3, next.calls, "failures are not cached")
}
