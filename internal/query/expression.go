package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type Comparator string

const (
	Equal          Comparator = "="
	NotEqual       Comparator = "!="
	GreaterThan    Comparator = ">"
	GreaterOrEqual Comparator = ">="
	LessThan       Comparator = "<"
	LessOrEqual    Comparator = "<="
	Like           Comparator = "LIKE"
	In             Comparator = "IN"
	IsNull         Comparator = "IS NULL"
	IsNotNull      Comparator = "IS NOT NULL"
)

func (c Comparator) valid() bool {
	switch c {
	case Equal, NotEqual, GreaterThan, GreaterOrEqual, LessThan, LessOrEqual, Like, In, IsNull, IsNotNull:
		return true
	}
	return false
}

// unary comparators take no right-hand side.
func (c Comparator) unary() bool {
	return c == IsNull || c == IsNotNull
}

// Expression is one filter predicate of a BasicQuery.
type Expression struct {
	Column     string     `json:"column" yaml:"column"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Value      any        `json:"value,omitempty" yaml:"value,omitempty"`
}

// SQLExpression is an Expression bound to its column reference.
type SQLExpression struct {
	ref        *ColumnReference
	comparator Comparator
	value      any
}

func NewSQLExpression(e Expression, index int, fields NodeFields) (*SQLExpression, error) {
	ref, err := NewColumnReference(e.Column, index, fields)
	if err != nil {
		return nil, err
	}
	if err := ref.physical(); err != nil {
		return nil, err
	}
	if !e.Comparator.valid() {
		return nil, fmt.Errorf("%q on %q: %w", e.Comparator, e.Column, ErrInvalidComparator)
	}
	if !e.Comparator.unary() && e.Value == nil {
		return nil, fmt.Errorf("%s %s requires a value: %w", e.Column, e.Comparator, ErrInvalidFilterValue)
	}
	if e.Comparator == In && !isCollection(e.Value) {
		return nil, fmt.Errorf("%s IN requires a collection, got %T: %w", e.Column, e.Value, ErrInvalidFilterValue)
	}
	return &SQLExpression{ref: ref, comparator: e.Comparator, value: e.Value}, nil
}

func (e *SQLExpression) Column() *ColumnReference { return e.ref }

// BindName is the parameter carrying the right-hand side.
func (e *SQLExpression) BindName() string {
	return expressionValuePrefix + strconv.Itoa(e.ref.index)
}

// ToSQL renders the predicate and binds its value into params.
func (e *SQLExpression) ToSQL(params *Parameters) (string, error) {
	lhs := e.ref.ToSQL()
	if e.comparator.unary() {
		return lhs + " " + string(e.comparator), nil
	}
	value := e.value
	if e.ref.field.EntityReference {
		v, err := TransformID(value)
		if err != nil {
			return "", fmt.Errorf("bind %s: %w", e.ref.name, err)
		}
		value = v
	}
	params.Put(e.BindName(), value)
	if e.comparator == In {
		return fmt.Sprintf("%s IN (:%s)", lhs, e.BindName()), nil
	}
	return fmt.Sprintf("%s %s :%s", lhs, e.comparator, e.BindName()), nil
}

func isCollection(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

// ExpressionList is the conjunction of a query's filters.
type ExpressionList struct {
	expressions []*SQLExpression
}

func NewExpressionList(filters []Expression, indexes *IndexProvider, fields NodeFields) (*ExpressionList, error) {
	if indexes == nil {
		return nil, fmt.Errorf("index provider: %w", ErrNilArgument)
	}
	l := &ExpressionList{}
	for _, f := range filters {
		e, err := NewSQLExpression(f, indexes.NextIndex(), fields)
		if err != nil {
			return nil, err
		}
		l.expressions = append(l.expressions, e)
	}
	return l, nil
}

func (l *ExpressionList) Len() int { return len(l.expressions) }

// ToSQL renders the WHERE body, or "" when there are no filters.
func (l *ExpressionList) ToSQL(params *Parameters) (string, error) {
	parts := make([]string, 0, len(l.expressions))
	for _, e := range l.expressions {
		s, err := e.ToSQL(params)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " AND "), nil
}

// Annotations returns the annotation columns a row must carry to match.
func (l *ExpressionList) Annotations() []*ColumnReference {
	var out []*ColumnReference
	for _, e := range l.expressions {
		if e.ref.annotation && e.comparator != IsNull {
			out = append(out, e.ref)
		}
	}
	return out
}

// NullableAnnotations returns the annotation columns tested with IS NULL.
// They match rows lacking the annotation, so they cannot be inner joined.
func (l *ExpressionList) NullableAnnotations() []*ColumnReference {
	var out []*ColumnReference
	for _, e := range l.expressions {
		if e.ref.annotation && e.comparator == IsNull {
			out = append(out, e.ref)
		}
	}
	return out
}
