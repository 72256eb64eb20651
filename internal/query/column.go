package query

import (
	"fmt"
	"strconv"
)

const (
	ObjectTable       = "OBJECT_REPLICATION"
	ObjectAlias       = "E"
	AnnotationTable   = "ANNOTATION_REPLICATION"
	annotationPrefix  = "A"
	StringValueColumn = "STRING_VALUE"

	joinNamePrefix        = "bJoinName"
	expressionValuePrefix = "bExpressionValue"
)

// ColumnReference is a logical column name resolved either to a physical
// node-field column on the object table or to an annotation join alias.
type ColumnReference struct {
	name  string
	index int
	field NodeField
	// annotation is true when name is not a reserved node field.
	annotation bool
}

func NewColumnReference(name string, index int, fields NodeFields) (*ColumnReference, error) {
	if name == "" {
		return nil, fmt.Errorf("column name: %w", ErrNilArgument)
	}
	if fields == nil {
		return nil, fmt.Errorf("node fields: %w", ErrNilArgument)
	}
	ref := &ColumnReference{name: name, index: index}
	if f, ok := fields.Lookup(name); ok {
		ref.field = f
	} else {
		ref.annotation = true
	}
	return ref, nil
}

func (c *ColumnReference) Name() string { return c.name }

func (c *ColumnReference) Index() int { return c.index }

func (c *ColumnReference) IsAnnotation() bool { return c.annotation }

// Field returns the resolved node field. It is the zero value for annotations.
func (c *ColumnReference) Field() NodeField { return c.field }

// Alias is the table alias the column is read from.
func (c *ColumnReference) Alias() string {
	if c.annotation {
		return annotationPrefix + strconv.Itoa(c.index)
	}
	return ObjectAlias
}

// JoinBindName is the parameter carrying the annotation key of the join.
func (c *ColumnReference) JoinBindName() string {
	return joinNamePrefix + strconv.Itoa(c.index)
}

// ToSQL renders the column. Reserved names without a physical column render
// as a literal NULL.
func (c *ColumnReference) ToSQL() string {
	if c.annotation {
		return c.Alias() + "." + StringValueColumn
	}
	if !c.field.HasColumn() {
		return "NULL"
	}
	return ObjectAlias + "." + c.field.Column
}

// physical reports whether the column can appear outside a select list.
func (c *ColumnReference) physical() error {
	if !c.annotation && !c.field.HasColumn() {
		return fmt.Errorf("%q has no physical column: %w", c.name, ErrUnknownColumn)
	}
	return nil
}
