package checksum

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nikolay-makurin/entityview/internal/reconcile"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Stream runs sql on first pull and yields its (id, checksum) rows one at a
// time. sql must order by id.
func Stream(ctx context.Context, db Querier, sql string, args ...any) reconcile.Stream {
	return func(yield func(types.IDAndChecksum, error) bool) {
		rows, err := db.Query(ctx, sql, args...)
		if err != nil {
			yield(types.IDAndChecksum{}, fmt.Errorf("checksum query failed: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var v types.IDAndChecksum
			if err := rows.Scan(&v.ID, &v.Checksum); err != nil {
				yield(types.IDAndChecksum{}, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(types.IDAndChecksum{}, err)
		}
	}
}
