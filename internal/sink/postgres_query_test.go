package sink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolay-makurin/entityview/internal/query"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

func TestToPostgres(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "named binds",
			in:   "SELECT E.ID AS 'id' FROM OBJECT_REPLICATION E WHERE E.CREATED_BY = :bExpressionValue0 LIMIT :bLimit OFFSET :bOffset",
			want: `SELECT E.ID AS "id" FROM (SELECT * FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = @bObjectType) E WHERE E.CREATED_BY = @bExpressionValue0 LIMIT @bLimit OFFSET @bOffset`,
		},
		{
			name: "in collection",
			in:   "SELECT COUNT(*) FROM OBJECT_REPLICATION E WHERE E.ID IN (:bExpressionValue0)",
			want: "SELECT COUNT(*) FROM (SELECT * FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = @bObjectType) E WHERE E.ID = ANY(@bExpressionValue0)",
		},
		{
			name: "quoted alias kept literal",
			in:   "SELECT A0.STRING_VALUE AS 'it''s :notABind' FROM OBJECT_REPLICATION E",
			want: `SELECT A0.STRING_VALUE AS "it's :notABind" FROM (SELECT * FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = @bObjectType) E`,
		},
		{
			name: "double quote in alias",
			in:   `SELECT NULL AS 'a"b' FROM OBJECT_REPLICATION E`,
			want: `SELECT NULL AS "a""b" FROM (SELECT * FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = @bObjectType) E`,
		},
		{
			name: "table name inside alias untouched",
			in:   "SELECT A0.STRING_VALUE AS 'OBJECT_REPLICATION E' FROM OBJECT_REPLICATION E",
			want: `SELECT A0.STRING_VALUE AS "OBJECT_REPLICATION E" FROM (SELECT * FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = @bObjectType) E`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toPostgres(tt.in))
		})
	}
}

func TestNamedArgs(t *testing.T) {
	p := query.NewParameters()
	p.Put("ints", []any{int64(1), 2})
	p.Put("strs", []any{"a", int64(3)})
	p.Put("set", map[int64]struct{}{7: {}})
	p.Put("scalar", "x")
	p.Put("number", 5)
	p.Put("ids", []int64{4, 5})

	args := namedArgs(p, types.ReplicationSubmission)
	assert.Equal(t, []int64{1, 2}, args["ints"])
	assert.Equal(t, []string{"a", "3"}, args["strs"])
	assert.Equal(t, []int64{7}, args["set"])
	assert.Equal(t, "x", args["scalar"])
	assert.Equal(t, "5", args["number"])
	assert.Equal(t, []int64{4, 5}, args["ids"])
	assert.Equal(t, "SUBMISSION", args["bObjectType"])
}

func TestToPostgres_ScopesEveryReplicaTable(t *testing.T) {
	m, err := query.Compile(query.BasicQuery{
		Select:  []string{"id", "bar"},
		Filters: []query.Expression{{Column: "foo", Comparator: query.Equal, Value: "x"}},
	}, query.DefaultNodeFields)
	require.NoError(t, err)

	sql := toPostgres(m.SQL())
	assert.Contains(t, sql, "FROM (SELECT * FROM OBJECT_REPLICATION WHERE OBJECT_TYPE = @bObjectType) E ")
	assert.Contains(t, sql, " JOIN (SELECT * FROM ANNOTATION_REPLICATION WHERE OBJECT_TYPE = @bObjectType) A2 ON (E.ID = A2.ENTITY_ID")
	assert.Contains(t, sql, " LEFT JOIN (SELECT * FROM ANNOTATION_REPLICATION WHERE OBJECT_TYPE = @bObjectType) A1 ON (E.ID = A1.ENTITY_ID")
	assert.NotContains(t, sql, "OBJECT_REPLICATION E ")
	assert.NotContains(t, sql, "ANNOTATION_REPLICATION A")

	count := toPostgres(m.CountSQL())
	assert.Equal(t, 3, strings.Count(count, "OBJECT_TYPE = @bObjectType"))
}
