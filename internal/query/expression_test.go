package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLExpression_ToSQL(t *testing.T) {
	testCases := []struct {
		name      string
		expr      Expression
		index     int
		wantSQL   string
		wantValue any
	}{
		{
			name:      "node field",
			expr:      Expression{Column: "createdBy", Comparator: Equal, Value: 123},
			index:     1,
			wantSQL:   "E.CREATED_BY = :bExpressionValue1",
			wantValue: 123,
		},
		{
			name:      "annotation",
			expr:      Expression{Column: "foo", Comparator: GreaterThan, Value: 456},
			index:     2,
			wantSQL:   "A2.STRING_VALUE > :bExpressionValue2",
			wantValue: 456,
		},
		{
			name:      "entity reference is transformed",
			expr:      Expression{Column: "parentId", Comparator: Equal, Value: "syn42"},
			index:     0,
			wantSQL:   "E.PARENT_ID = :bExpressionValue0",
			wantValue: int64(42),
		},
		{
			name:      "in binds the whole collection",
			expr:      Expression{Column: "parentId", Comparator: In, Value: []string{"syn1", "syn2"}},
			index:     4,
			wantSQL:   "E.PARENT_ID IN (:bExpressionValue4)",
			wantValue: []int64{1, 2},
		},
		{
			name:      "like",
			expr:      Expression{Column: "name", Comparator: Like, Value: "foo%"},
			index:     5,
			wantSQL:   "E.NAME LIKE :bExpressionValue5",
			wantValue: "foo%",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewSQLExpression(tc.expr, tc.index, DefaultNodeFields)
			require.NoError(t, err)

			params := NewParameters()
			sql, err := e.ToSQL(params)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, sql)

			v, ok := params.Get(e.BindName())
			require.True(t, ok)
			assert.Equal(t, tc.wantValue, v)
			assert.Equal(t, 1, params.Len())
		})
	}
}

func TestSQLExpression_Unary(t *testing.T) {
	e, err := NewSQLExpression(Expression{Column: "foo", Comparator: IsNull}, 0, DefaultNodeFields)
	require.NoError(t, err)

	params := NewParameters()
	sql, err := e.ToSQL(params)
	require.NoError(t, err)
	assert.Equal(t, "A0.STRING_VALUE IS NULL", sql)
	assert.Equal(t, 0, params.Len())
}

func TestSQLExpression_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		expr Expression
		err  error
	}{
		{name: "missing column", expr: Expression{Comparator: Equal, Value: 1}, err: ErrNilArgument},
		{name: "unknown comparator", expr: Expression{Column: "foo", Comparator: "~", Value: 1}, err: ErrInvalidComparator},
		{name: "missing value", expr: Expression{Column: "foo", Comparator: Equal}, err: ErrInvalidFilterValue},
		{name: "in without collection", expr: Expression{Column: "foo", Comparator: In, Value: "x"}, err: ErrInvalidFilterValue},
		{name: "field without column", expr: Expression{Column: "alias", Comparator: Equal, Value: "x"}, err: ErrUnknownColumn},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSQLExpression(tc.expr, 0, DefaultNodeFields)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSQLExpression_BadEntityReference(t *testing.T) {
	e, err := NewSQLExpression(Expression{Column: "benefactorId", Comparator: Equal, Value: 3.5}, 0, DefaultNodeFields)
	require.NoError(t, err)

	_, err = e.ToSQL(NewParameters())
	assert.ErrorIs(t, err, ErrUnsupportedIDType)
}

func TestExpressionList(t *testing.T) {
	indexes := &IndexProvider{}
	indexes.NextIndex()

	l, err := NewExpressionList([]Expression{
		{Column: "createdBy", Comparator: Equal, Value: 123},
		{Column: "foo", Comparator: GreaterThan, Value: 456},
	}, indexes, DefaultNodeFields)
	require.NoError(t, err)

	params := NewParameters()
	sql, err := l.ToSQL(params)
	require.NoError(t, err)
	assert.Equal(t, "E.CREATED_BY = :bExpressionValue1 AND A2.STRING_VALUE > :bExpressionValue2", sql)

	annotations := l.Annotations()
	require.Len(t, annotations, 1)
	assert.Equal(t, "foo", annotations[0].Name())
	assert.Equal(t, 2, annotations[0].Index())
}

func TestExpressionList_Empty(t *testing.T) {
	l, err := NewExpressionList(nil, &IndexProvider{}, DefaultNodeFields)
	require.NoError(t, err)

	sql, err := l.ToSQL(NewParameters())
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Empty(t, l.Annotations())
}
