package sink

import (
	"context"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

// Sink is one replica store. Write removes every row in batch.DeleteIDs and
// inserts batch.Rows for batch.Type.
type Sink interface {
	Write(ctx context.Context, batch *types.Batch) error
	Close() error
}
