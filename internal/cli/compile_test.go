package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

const mixedQueryYAML = `select: [id]
filters:
  - column: createdBy
    comparator: "="
    value: 123
  - column: foo
    comparator: ">"
    value: 456
sort: bar
ascending: true
limit: 10
offset: 20
`

const mixedQuerySQL = "SELECT E.ID AS 'id' FROM OBJECT_REPLICATION E" +
	" JOIN ANNOTATION_REPLICATION A2 ON (E.ID = A2.ENTITY_ID AND A2.ANNO_KEY = :bJoinName2)" +
	" LEFT JOIN ANNOTATION_REPLICATION A3 ON (E.ID = A3.ENTITY_ID AND A3.ANNO_KEY = :bJoinName3)" +
	" WHERE E.CREATED_BY = :bExpressionValue1 AND A2.STRING_VALUE > :bExpressionValue2" +
	" ORDER BY A3.STRING_VALUE ASC LIMIT :bLimit OFFSET :bOffset"

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompileCommandText(t *testing.T) {
	out, err := runCommand(t, mixedQueryYAML, "compile", "-")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, mixedQuerySQL, lines[0])
	assert.Equal(t, "  :bJoinName2 = foo", lines[1])
	assert.Equal(t, "  :bExpressionValue1 = 123", lines[3])
	assert.Equal(t, "  :bOffset = 20", lines[6])
}

func TestCompileCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mixedQueryYAML), 0o644))

	out, err := runCommand(t, "", "compile", path, "--format", "json")
	require.NoError(t, err)

	var got CompiledQuery
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, mixedQuerySQL, got.SQL)
	assert.False(t, got.SelectStar)
	assert.Equal(t, float64(10), got.Parameters["bLimit"])
	assert.NotContains(t, got.CountParameters, "bLimit")
	assert.True(t, strings.HasPrefix(got.CountSQL, "SELECT COUNT(*) FROM OBJECT_REPLICATION E"))
}

func TestCompileCommandSelectStar(t *testing.T) {
	out, err := runCommand(t, "limit: 5\n", "compile", "-", "--format", "json")
	require.NoError(t, err)

	var got CompiledQuery
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.SelectStar)
	assert.Contains(t, got.SQL, "NULL AS 'alias'")
}

func TestCompileCommandErrors(t *testing.T) {
	_, err := runCommand(t, "", "compile", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = runCommand(t, "filters: [{column: '', comparator: '='}]\n", "compile", "-")
	assert.Error(t, err)

	_, err = runCommand(t, mixedQueryYAML, "compile", "-", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestParseReplicationType(t *testing.T) {
	rt, err := parseReplicationType("submission")
	require.NoError(t, err)
	assert.Equal(t, types.ReplicationSubmission, rt)

	rt, err = parseReplicationType("ENTITY")
	require.NoError(t, err)
	assert.Equal(t, types.ReplicationEntity, rt)

	_, err = parseReplicationType("PRINCIPAL")
	assert.Error(t, err)
}

func TestQueryCommand_RejectsUnknownType(t *testing.T) {
	_, err := runCommand(t, mixedQueryYAML, "query", "--type", "PRINCIPAL", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown replication type")
}
