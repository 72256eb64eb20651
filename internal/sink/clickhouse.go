package sink

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// ClickHouseSchema mirrors the replica tables for analytical reads.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS object_replication (
    object_type     LowCardinality(String),
    id              Int64,
    name            String,
    type            LowCardinality(String),
    etag            String,
    current_version Int64,
    parent_id       Nullable(Int64),
    benefactor_id   Int64,
    project_id      Nullable(Int64),
    created_by      Int64,
    created_on      DateTime64(3),
    modified_by     Int64,
    modified_on     DateTime64(3),
    file_id         Nullable(Int64)
) ENGINE = ReplacingMergeTree ORDER BY (object_type, id)`,
	`CREATE TABLE IF NOT EXISTS annotation_replication (
    object_type  LowCardinality(String),
    entity_id    Int64,
    anno_key     String,
    anno_type    LowCardinality(String),
    string_value String
) ENGINE = ReplacingMergeTree ORDER BY (object_type, entity_id, anno_key)`,
}

type ClickHouseSink struct {
	conn driver.Conn
}

func NewClickHouseSink(cfg config.ClickHouseTarget) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	return &ClickHouseSink{conn: conn}, nil
}

func (s *ClickHouseSink) EnsureSchema(ctx context.Context) error {
	for _, ddl := range ClickHouseSchema {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create clickhouse schema: %w", err)
		}
	}
	return nil
}

// Write applies deletes with lightweight DELETE, then appends the fresh rows.
func (s *ClickHouseSink) Write(ctx context.Context, batch *types.Batch) error {
	objectType := string(batch.Type)

	if len(batch.DeleteIDs) > 0 {
		if err := s.conn.Exec(ctx, "DELETE FROM annotation_replication WHERE object_type = ? AND entity_id IN (?)",
			objectType, batch.DeleteIDs); err != nil {
			return fmt.Errorf("annotation delete failed: %w", err)
		}
		if err := s.conn.Exec(ctx, "DELETE FROM object_replication WHERE object_type = ? AND id IN (?)",
			objectType, batch.DeleteIDs); err != nil {
			return fmt.Errorf("object delete failed: %w", err)
		}
	}
	if len(batch.Rows) == 0 {
		return nil
	}

	objects, err := s.conn.PrepareBatch(ctx, "INSERT INTO object_replication")
	if err != nil {
		return fmt.Errorf("prepare batch failed for object_replication: %w", err)
	}
	annotations, err := s.conn.PrepareBatch(ctx, "INSERT INTO annotation_replication")
	if err != nil {
		objects.Abort()
		return fmt.Errorf("prepare batch failed for annotation_replication: %w", err)
	}

	for _, row := range batch.Rows {
		if err := objects.Append(objectType, row.ID, row.Name, row.Type, row.ETag, row.CurrentVersion,
			row.ParentID, row.BenefactorID, row.ProjectID, row.CreatedBy, row.CreatedOn,
			row.ModifiedBy, row.ModifiedOn, row.FileHandleID); err != nil {
			objects.Abort()
			annotations.Abort()
			return err
		}
		for _, a := range row.Annotations {
			if err := annotations.Append(objectType, row.ID, a.Key, string(a.Type), a.Value); err != nil {
				objects.Abort()
				annotations.Abort()
				return err
			}
		}
	}

	if err := objects.Send(); err != nil {
		annotations.Abort()
		return fmt.Errorf("batch send failed for object_replication: %w", err)
	}
	if err := annotations.Send(); err != nil {
		return fmt.Errorf("batch send failed for annotation_replication: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
