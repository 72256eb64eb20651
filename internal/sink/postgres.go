package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikolay-makurin/entityview/internal/checksum"
	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/internal/reconcile"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// ReplicaSchema creates the replica tables the query compiler targets.
const ReplicaSchema = `
CREATE TABLE IF NOT EXISTS OBJECT_REPLICATION (
    OBJECT_TYPE     TEXT        NOT NULL,
    ID              BIGINT      NOT NULL,
    NAME            TEXT,
    TYPE            TEXT,
    ETAG            TEXT        NOT NULL,
    CURRENT_VERSION BIGINT,
    PARENT_ID       BIGINT,
    BENEFACTOR_ID   BIGINT      NOT NULL,
    PROJECT_ID      BIGINT,
    CREATED_BY      BIGINT,
    CREATED_ON      TIMESTAMPTZ,
    MODIFIED_BY     BIGINT,
    MODIFIED_ON     TIMESTAMPTZ,
    FILE_ID         BIGINT,
    PRIMARY KEY (OBJECT_TYPE, ID)
);
CREATE INDEX IF NOT EXISTS OBJECT_REPLICATION_PARENT ON OBJECT_REPLICATION (OBJECT_TYPE, PARENT_ID, ID);
CREATE TABLE IF NOT EXISTS ANNOTATION_REPLICATION (
    OBJECT_TYPE  TEXT   NOT NULL,
    ENTITY_ID    BIGINT NOT NULL,
    ANNO_KEY     TEXT   NOT NULL,
    ANNO_TYPE    TEXT   NOT NULL,
    STRING_VALUE TEXT,
    PRIMARY KEY (OBJECT_TYPE, ENTITY_ID, ANNO_KEY)
);`

const (
	deleteAnnotationsSQL = `DELETE FROM ANNOTATION_REPLICATION WHERE OBJECT_TYPE = $1 AND ENTITY_ID = ANY($2)`
	deleteObjectsSQL     = `DELETE FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = $1 AND ID = ANY($2)`
	insertObjectSQL      = `INSERT INTO OBJECT_REPLICATION (OBJECT_TYPE, ID, NAME, TYPE, ETAG, CURRENT_VERSION, PARENT_ID,
    BENEFACTOR_ID, PROJECT_ID, CREATED_BY, CREATED_ON, MODIFIED_BY, MODIFIED_ON, FILE_ID)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	insertAnnotationSQL = `INSERT INTO ANNOTATION_REPLICATION (OBJECT_TYPE, ENTITY_ID, ANNO_KEY, ANNO_TYPE, STRING_VALUE)
VALUES ($1, $2, $3, $4, $5)`
)

// replicaChecksumSQL must render the same digest as the truth side.
var replicaChecksumSQL = `SELECT ID, ` + checksum.SQL("$1", "ETAG", "BENEFACTOR_ID") + `
FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = $2 AND PARENT_ID = ANY($3) ORDER BY ID`

// PostgresSink is the primary replica. Besides applying batches it streams
// replica checksums and executes compiled queries.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, cfg config.PostgresTarget) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ReplicaSchema); err != nil {
		return fmt.Errorf("failed to create replica schema: %w", err)
	}
	return nil
}

// Write deletes and re-inserts the batch in one transaction.
func (s *PostgresSink) Write(ctx context.Context, batch *types.Batch) error {
	pgBatch := &pgx.Batch{}
	objectType := string(batch.Type)

	if len(batch.DeleteIDs) > 0 {
		pgBatch.Queue(deleteAnnotationsSQL, objectType, batch.DeleteIDs)
		pgBatch.Queue(deleteObjectsSQL, objectType, batch.DeleteIDs)
	}
	for _, row := range batch.Rows {
		pgBatch.Queue(insertObjectSQL, objectType, row.ID, row.Name, row.Type, row.ETag, row.CurrentVersion,
			row.ParentID, row.BenefactorID, row.ProjectID, row.CreatedBy, row.CreatedOn, row.ModifiedBy,
			row.ModifiedOn, row.FileHandleID)
		for _, a := range row.Annotations {
			pgBatch.Queue(insertAnnotationSQL, objectType, row.ID, a.Key, string(a.Type), a.Value)
		}
	}
	if pgBatch.Len() == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replica transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, pgBatch)
	for i := 0; i < pgBatch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch execution failed at index %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// StreamIDsAndChecksums streams the replica rows of scope in id order.
func (s *PostgresSink) StreamIDsAndChecksums(ctx context.Context, salt int64, scope types.Scope) reconcile.Stream {
	return checksum.Stream(ctx, s.pool, replicaChecksumSQL, salt, string(scope.Type), scope.ContainerIDs)
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
