package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nikolay-makurin/entityview/internal/query"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// objectTypeBind carries the replication type every replica query is scoped to.
const objectTypeBind = "bObjectType"

var (
	inBindPattern    = regexp.MustCompile(`IN \(:(\w+)\)`)
	namedBindPattern = regexp.MustCompile(`:(\w+)`)
	tableRefPattern  = regexp.MustCompile(`\b(` + query.ObjectTable + `|` + query.AnnotationTable + `) (` +
		query.ObjectAlias + `|A\d+)\b`)
)

// toPostgres rewrites compiled SQL for pgx named arguments. Each replica
// table reference is narrowed to the rows of one object type, binds outside
// quoted text become @name, IN over a collection becomes = ANY(@name) and
// single-quoted aliases become double-quoted identifiers.
func toPostgres(sql string) string {
	var b strings.Builder
	var plain strings.Builder

	flush := func() {
		s := tableRefPattern.ReplaceAllString(plain.String(),
			"(SELECT * FROM $1 WHERE OBJECT_TYPE = :"+objectTypeBind+") $2")
		s = inBindPattern.ReplaceAllString(s, "= ANY(@$1)")
		b.WriteString(namedBindPattern.ReplaceAllString(s, "@$1"))
		plain.Reset()
	}

	for i := 0; i < len(sql); i++ {
		if sql[i] != '\'' {
			plain.WriteByte(sql[i])
			continue
		}
		flush()

		var ident strings.Builder
		i++
		for ; i < len(sql); i++ {
			if sql[i] == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					ident.WriteByte('\'')
					i++
					continue
				}
				break
			}
			ident.WriteByte(sql[i])
		}
		b.WriteString(`"` + strings.ReplaceAll(ident.String(), `"`, `""`) + `"`)
	}
	flush()
	return b.String()
}

// namedArgs converts bindings to pgx arguments and adds the object type the
// replica tables are scoped to. Scalars are sent as text so the server parses
// them as the column type. Decoded collections arrive as []any; they are
// narrowed to a slice type pgx can encode as an array.
func namedArgs(p *query.Parameters, rt types.ReplicationType) pgx.NamedArgs {
	args := make(pgx.NamedArgs, p.Len()+1)
	for _, name := range p.Names() {
		v, _ := p.Get(name)
		args[name] = normalizeArg(v)
	}
	args[objectTypeBind] = string(rt)
	return args
}

func normalizeArg(v any) any {
	switch t := v.(type) {
	case []any:
		ints := make([]int64, 0, len(t))
		for _, e := range t {
			switch n := e.(type) {
			case int64:
				ints = append(ints, n)
			case int:
				ints = append(ints, int64(n))
			}
		}
		if len(ints) == len(t) {
			return ints
		}
		strs := make([]string, len(t))
		for i, e := range t {
			strs[i] = fmt.Sprint(e)
		}
		return strs
	case map[int64]struct{}:
		ids := make([]int64, 0, len(t))
		for id := range t {
			ids = append(ids, id)
		}
		return ids
	case nil, string, time.Time, []int64, []string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Query runs the page query of m over the replica rows of rt and returns each
// row keyed by its select name, in select order.
func (s *PostgresSink) Query(ctx context.Context, rt types.ReplicationType, m *query.Model) ([]map[string]any, error) {
	rows, err := s.pool.Query(ctx, toPostgres(m.SQL()), namedArgs(m.Parameters(), rt))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		fields := rows.FieldDescriptions()
		row := make(map[string]any, len(values))
		for i, v := range values {
			row[fields[i].Name] = v
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *PostgresSink) Count(ctx context.Context, rt types.ReplicationType, m *query.Model) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, toPostgres(m.CountSQL()), namedArgs(m.CountParameters(), rt)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

func (s *PostgresSink) DistinctBenefactors(ctx context.Context, rt types.ReplicationType, m *query.Model, limit int64) ([]int64, error) {
	sql, err := m.DistinctBenefactorSQL(limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, toPostgres(sql), namedArgs(m.CountParameters(), rt))
	if err != nil {
		return nil, fmt.Errorf("benefactor query failed: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
