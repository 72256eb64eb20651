package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikolay-makurin/entityview/internal/checksum"
	"github.com/nikolay-makurin/entityview/internal/reconcile"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// ErrViewNotFound is returned for a view without a scope.
var ErrViewNotFound = errors.New("view not found")

// TruthSchema is the layout of the truth tables read by Truth.
const TruthSchema = `
CREATE TABLE IF NOT EXISTS NODE (
    OBJECT_TYPE     TEXT        NOT NULL,
    ID              BIGINT      NOT NULL,
    NAME            TEXT        NOT NULL,
    NODE_TYPE       TEXT        NOT NULL,
    ETAG            TEXT        NOT NULL,
    CURRENT_VERSION BIGINT      NOT NULL DEFAULT 1,
    PARENT_ID       BIGINT,
    BENEFACTOR_ID   BIGINT      NOT NULL,
    PROJECT_ID      BIGINT,
    CREATED_BY      BIGINT      NOT NULL,
    CREATED_ON      TIMESTAMPTZ NOT NULL DEFAULT now(),
    MODIFIED_BY     BIGINT      NOT NULL,
    MODIFIED_ON     TIMESTAMPTZ NOT NULL DEFAULT now(),
    FILE_HANDLE_ID  BIGINT,
    PRIMARY KEY (OBJECT_TYPE, ID)
);
CREATE TABLE IF NOT EXISTS NODE_ANNOTATION (
    OBJECT_TYPE TEXT   NOT NULL,
    NODE_ID     BIGINT NOT NULL,
    ANNO_KEY    TEXT   NOT NULL,
    ANNO_TYPE   TEXT   NOT NULL,
    ANNO_VALUE  TEXT   NOT NULL,
    PRIMARY KEY (OBJECT_TYPE, NODE_ID, ANNO_KEY)
);
CREATE TABLE IF NOT EXISTS VIEW_SCOPE (
    VIEW_ID          BIGINT NOT NULL,
    REPLICATION_TYPE TEXT   NOT NULL,
    CONTAINER_ID     BIGINT NOT NULL,
    PRIMARY KEY (VIEW_ID, CONTAINER_ID)
);`

const (
	selectNodesSQL = `SELECT ID, NAME, NODE_TYPE, ETAG, CURRENT_VERSION, PARENT_ID, BENEFACTOR_ID, PROJECT_ID,
    CREATED_BY, CREATED_ON, MODIFIED_BY, MODIFIED_ON, FILE_HANDLE_ID
FROM NODE WHERE OBJECT_TYPE = $1 AND ID = ANY($2) ORDER BY ID`
	selectAnnotationsSQL = `SELECT NODE_ID, ANNO_KEY, ANNO_TYPE, left(ANNO_VALUE, $3)
FROM NODE_ANNOTATION WHERE OBJECT_TYPE = $1 AND NODE_ID = ANY($2) ORDER BY NODE_ID, ANNO_KEY`
	selectScopeSQL = `SELECT REPLICATION_TYPE, CONTAINER_ID FROM VIEW_SCOPE WHERE VIEW_ID = $1 ORDER BY CONTAINER_ID`
)

var truthChecksumSQL = `SELECT ID, ` + checksum.SQL("$1", "ETAG", "BENEFACTOR_ID") + `
FROM NODE WHERE OBJECT_TYPE = $2 AND PARENT_ID = ANY($3) ORDER BY ID`

// Truth reads objects, checksums and view scopes from the truth database.
type Truth struct {
	pool *pgxpool.Pool
}

func NewTruth(ctx context.Context, connString string) (*Truth, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Truth{pool: pool}, nil
}

// Provider returns the data provider for one replication type.
func (t *Truth) Provider(rt types.ReplicationType) *Provider {
	return &Provider{pool: t.pool, objectType: string(rt)}
}

func (t *Truth) ResolveScope(ctx context.Context, viewID int64) (types.Scope, error) {
	rows, err := t.pool.Query(ctx, selectScopeSQL, viewID)
	if err != nil {
		return types.Scope{}, fmt.Errorf("scope query failed: %w", err)
	}
	defer rows.Close()

	scope := types.Scope{ViewID: viewID}
	for rows.Next() {
		var rt string
		var containerID int64
		if err := rows.Scan(&rt, &containerID); err != nil {
			return types.Scope{}, err
		}
		if scope.Type != "" && scope.Type != types.ReplicationType(rt) {
			return types.Scope{}, fmt.Errorf("view %d mixes replication types %s and %s", viewID, scope.Type, rt)
		}
		scope.Type = types.ReplicationType(rt)
		scope.ContainerIDs = append(scope.ContainerIDs, containerID)
	}
	if err := rows.Err(); err != nil {
		return types.Scope{}, err
	}
	if len(scope.ContainerIDs) == 0 {
		return types.Scope{}, fmt.Errorf("view %d: %w", viewID, ErrViewNotFound)
	}
	return scope, nil
}

func (t *Truth) Close() {
	t.pool.Close()
}

// Provider serves one replication type's share of truth.
type Provider struct {
	pool       *pgxpool.Pool
	objectType string
}

// GetObjectData yields the rows of ids that still exist, in id order, with
// annotation values cut to maxAnnotationChars characters.
func (p *Provider) GetObjectData(ctx context.Context, ids []int64, maxAnnotationChars int) iter.Seq2[types.ObjectData, error] {
	return func(yield func(types.ObjectData, error) bool) {
		annotations, err := p.annotations(ctx, ids, maxAnnotationChars)
		if err != nil {
			yield(types.ObjectData{}, err)
			return
		}

		rows, err := p.pool.Query(ctx, selectNodesSQL, p.objectType, ids)
		if err != nil {
			yield(types.ObjectData{}, fmt.Errorf("node query failed: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var o types.ObjectData
			if err := rows.Scan(&o.ID, &o.Name, &o.Type, &o.ETag, &o.CurrentVersion, &o.ParentID, &o.BenefactorID,
				&o.ProjectID, &o.CreatedBy, &o.CreatedOn, &o.ModifiedBy, &o.ModifiedOn, &o.FileHandleID); err != nil {
				yield(types.ObjectData{}, err)
				return
			}
			o.Annotations = annotations[o.ID]
			if !yield(o, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(types.ObjectData{}, err)
		}
	}
}

func (p *Provider) annotations(ctx context.Context, ids []int64, maxChars int) (map[int64][]types.Annotation, error) {
	rows, err := p.pool.Query(ctx, selectAnnotationsSQL, p.objectType, ids, maxChars)
	if err != nil {
		return nil, fmt.Errorf("annotation query failed: %w", err)
	}
	type annotationRow struct {
		NodeID int64
		types.Annotation
	}
	collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (annotationRow, error) {
		var a annotationRow
		var annoType string
		err := row.Scan(&a.NodeID, &a.Key, &annoType, &a.Value)
		a.Type = types.AnnotationType(annoType)
		return a, err
	})
	if err != nil {
		return nil, err
	}

	byNode := make(map[int64][]types.Annotation)
	for _, a := range collected {
		byNode[a.NodeID] = append(byNode[a.NodeID], a.Annotation)
	}
	return byNode, nil
}

// StreamIDsAndChecksums streams the truth rows of scope in id order.
func (p *Provider) StreamIDsAndChecksums(ctx context.Context, salt int64, scope types.Scope) reconcile.Stream {
	return checksum.Stream(ctx, p.pool, truthChecksumSQL, salt, p.objectType, scope.ContainerIDs)
}
