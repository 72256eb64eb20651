package replication

import (
	"context"
	"iter"

	"github.com/nikolay-makurin/entityview/internal/reconcile"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// DataProvider reads fresh rows and checksums from truth for one
// replication type.
type DataProvider interface {
	GetObjectData(ctx context.Context, ids []int64, maxAnnotationChars int) iter.Seq2[types.ObjectData, error]
	// StreamIDsAndChecksums must yield ids in strictly ascending order.
	StreamIDsAndChecksums(ctx context.Context, salt int64, scope types.Scope) reconcile.Stream
}

// Writer applies a batch to the replica: every DeleteIDs row is removed and
// Rows are inserted in their place.
type Writer interface {
	Write(ctx context.Context, batch *types.Batch) error
}

// ReplicaChecksums streams the replica side of a reconciliation.
type ReplicaChecksums interface {
	StreamIDsAndChecksums(ctx context.Context, salt int64, scope types.Scope) reconcile.Stream
}

// Lock is the per-view, expiry based reconciliation lock. IsLockExpired
// claims the lock when it reports true.
type Lock interface {
	IsLockExpired(ctx context.Context, t types.ReplicationType, viewID int64) (bool, error)
	ResetLock(ctx context.Context, t types.ReplicationType, viewID int64) error
}

type ScopeResolver interface {
	ResolveScope(ctx context.Context, viewID int64) (types.Scope, error)
}

// Queue is the asynchronous transport for change messages.
type Queue interface {
	Publish(ctx context.Context, body []byte) error
	Attributes(ctx context.Context, names ...string) (map[string]string, error)
}
