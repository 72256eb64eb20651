package query

import (
	"fmt"
	"strings"
)

// SelectColumn renders one requested output column.
type SelectColumn struct {
	ref *ColumnReference
}

func (c SelectColumn) Column() *ColumnReference { return c.ref }

func (c SelectColumn) ToSQL() string {
	return c.ref.ToSQL() + " AS " + quoteAlias(c.ref.name)
}

// SelectList is the output column list. An empty request selects every
// reserved node field.
type SelectList struct {
	columns []SelectColumn
	star    []NodeField
}

func NewSelectList(names []string, indexes *IndexProvider, fields NodeFields) (*SelectList, error) {
	if indexes == nil {
		return nil, fmt.Errorf("index provider: %w", ErrNilArgument)
	}
	if fields == nil {
		return nil, fmt.Errorf("node fields: %w", ErrNilArgument)
	}
	if len(names) == 0 {
		return &SelectList{star: fields.All()}, nil
	}
	l := &SelectList{columns: make([]SelectColumn, 0, len(names))}
	for _, name := range names {
		ref, err := NewColumnReference(name, indexes.NextIndex(), fields)
		if err != nil {
			return nil, err
		}
		l.columns = append(l.columns, SelectColumn{ref: ref})
	}
	return l, nil
}

// IsSelectStar reports whether the list was expanded from an empty request.
func (l *SelectList) IsSelectStar() bool {
	return l.columns == nil
}

// Names returns the output column names in order.
func (l *SelectList) Names() []string {
	if l.IsSelectStar() {
		out := make([]string, len(l.star))
		for i, f := range l.star {
			out[i] = f.Name
		}
		return out
	}
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.ref.name
	}
	return out
}

func (l *SelectList) ToSQL() string {
	var parts []string
	if l.IsSelectStar() {
		for _, f := range l.star {
			col := "NULL"
			if f.HasColumn() {
				col = ObjectAlias + "." + f.Column
			}
			parts = append(parts, col+" AS "+quoteAlias(f.Name))
		}
	} else {
		for _, c := range l.columns {
			parts = append(parts, c.ToSQL())
		}
	}
	return strings.Join(parts, ", ")
}

func (l *SelectList) Annotations() []*ColumnReference {
	var out []*ColumnReference
	for _, c := range l.columns {
		if c.ref.annotation {
			out = append(out, c.ref)
		}
	}
	return out
}

func quoteAlias(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
