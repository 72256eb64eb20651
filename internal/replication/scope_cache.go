package replication

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

// CachedScopeResolver memoizes view scopes for a bounded time.
type CachedScopeResolver struct {
	next  ScopeResolver
	cache *otter.Cache[int64, types.Scope]
}

func NewCachedScopeResolver(next ScopeResolver, ttl time.Duration, size int) *CachedScopeResolver {
	return &CachedScopeResolver{
		next:  next,
		cache: otter.Must(&otter.Options[int64, types.Scope]{
			MaximumSize:      size,
			ExpiryCalculator: otter.ExpiryWriting[int64, types.Scope](ttl),
		}),
	}
}

func (c *CachedScopeResolver) ResolveScope(ctx context.Context, viewID int64) (types.Scope, error) {
	if s, ok := c.cache.GetIfPresent(viewID); ok {
		return s, nil
	}
	s, err := c.next.ResolveScope(ctx, viewID)
	if err != nil {
		return types.Scope{}, err
	}
	c.cache.Set(viewID, s)
	return s, nil
}
