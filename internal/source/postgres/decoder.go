package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
)

// decodeTuple decodes the text-format columns of tuple. Unchanged TOAST
// values are absent from the result.
func decodeTuple(tuple *pglogrepl.TupleData, rel *pglogrepl.RelationMessage, typeMap *pgtype.Map) (map[string]any, error) {
	if tuple == nil {
		return nil, fmt.Errorf("relation %s: missing tuple data", rel.RelationName)
	}
	values := make(map[string]any, len(tuple.Columns))
	for idx, col := range tuple.Columns {
		if idx >= len(rel.Columns) {
			return nil, fmt.Errorf("tuple column index %d out of range for relation %s", idx, rel.RelationName)
		}
		colDef := rel.Columns[idx]

		switch col.DataType {
		case pglogrepl.TupleDataTypeNull:
			values[colDef.Name] = nil
		case pglogrepl.TupleDataTypeToast:
			continue
		case pglogrepl.TupleDataTypeText:
			val, err := decodeText(typeMap, col.Data, colDef.DataType)
			if err != nil {
				return nil, fmt.Errorf("column %s.%s: %w", rel.RelationName, colDef.Name, err)
			}
			values[colDef.Name] = val
		case pglogrepl.TupleDataTypeBinary:
			values[colDef.Name] = col.Data
		}
	}
	return values, nil
}

func decodeText(typeMap *pgtype.Map, data []byte, oid uint32) (any, error) {
	if dt, ok := typeMap.TypeForOID(oid); ok {
		return dt.Codec.DecodeValue(typeMap, oid, pgtype.TextFormatCode, data)
	}
	return string(data), nil
}

// keyColumn names the column carrying the object id: the first replica
// identity key column, else a column named id.
func keyColumn(rel *pglogrepl.RelationMessage) (string, bool) {
	for _, c := range rel.Columns {
		if c.Flags&1 == 1 {
			return c.Name, true
		}
	}
	for _, c := range rel.Columns {
		if strings.EqualFold(c.Name, "id") {
			return c.Name, true
		}
	}
	return "", false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("object id of type %T is not an integer", v)
	}
}
