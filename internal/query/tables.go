package query

import (
	"fmt"
	"strings"
)

// Tables decides the FROM clause. Annotations referenced by filters are inner
// joined since a row without them cannot match. Annotations tested with
// IS NULL, or used only for output or ordering, are left joined so such rows
// survive with a NULL value.
type Tables struct {
	required []*ColumnReference
	optional []*ColumnReference
}

func NewTables(selects *SelectList, filters *ExpressionList, sort *SortList) *Tables {
	t := &Tables{}
	if filters != nil {
		t.required = filters.Annotations()
		t.optional = filters.NullableAnnotations()
	}
	if selects != nil {
		t.optional = append(t.optional, selects.Annotations()...)
	}
	t.optional = append(t.optional, sort.Annotations()...)
	return t
}

// ToSQL renders the FROM body and binds each join's annotation key.
func (t *Tables) ToSQL(params *Parameters) string {
	var b strings.Builder
	b.WriteString(ObjectTable + " " + ObjectAlias)
	for _, ref := range t.required {
		b.WriteString(" JOIN ")
		b.WriteString(join(ref, params))
	}
	for _, ref := range t.optional {
		b.WriteString(" LEFT JOIN ")
		b.WriteString(join(ref, params))
	}
	return b.String()
}

func join(ref *ColumnReference, params *Parameters) string {
	alias := ref.Alias()
	params.Put(ref.JoinBindName(), ref.name)
	return fmt.Sprintf("%s %s ON (%s.ID = %s.ENTITY_ID AND %s.ANNO_KEY = :%s)",
		AnnotationTable, alias, ObjectAlias, alias, alias, ref.JoinBindName())
}
