package query

import (
	"fmt"
	"strconv"
	"strings"
)

// BasicQuery is the abstract query over the object replica.
type BasicQuery struct {
	Select    []string     `json:"select" yaml:"select"`
	Filters   []Expression `json:"filters" yaml:"filters"`
	Sort      string       `json:"sort" yaml:"sort"`
	Ascending bool         `json:"ascending" yaml:"ascending"`
	Limit     int64        `json:"limit" yaml:"limit"`
	Offset    int64        `json:"offset" yaml:"offset"`
}

// Model is a compiled BasicQuery. It renders the page query, the count query
// and the distinct-benefactor scan from one FROM/JOIN/WHERE compilation.
type Model struct {
	selects    *SelectList
	filters    *ExpressionList
	sort       *SortList
	pagination Pagination

	from  string
	where string

	params *Parameters
}

// Compile builds a Model. Indices are consumed by the select list, then the
// filters, then the sort column.
func Compile(q BasicQuery, fields NodeFields) (*Model, error) {
	if fields == nil {
		return nil, fmt.Errorf("node fields: %w", ErrNilArgument)
	}
	indexes := &IndexProvider{}

	selects, err := NewSelectList(q.Select, indexes, fields)
	if err != nil {
		return nil, fmt.Errorf("compile select: %w", err)
	}
	filters, err := NewExpressionList(q.Filters, indexes, fields)
	if err != nil {
		return nil, fmt.Errorf("compile filters: %w", err)
	}
	sort, err := NewSortList(q.Sort, q.Ascending, indexes, fields)
	if err != nil {
		return nil, fmt.Errorf("compile sort: %w", err)
	}
	pagination, err := NewPagination(q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}

	m := &Model{
		selects:    selects,
		filters:    filters,
		sort:       sort,
		pagination: pagination,
		params:     NewParameters(),
	}
	m.from = NewTables(selects, filters, sort).ToSQL(m.params)
	if m.where, err = filters.ToSQL(m.params); err != nil {
		return nil, fmt.Errorf("compile filters: %w", err)
	}
	return m, nil
}

func (m *Model) IsSelectStar() bool { return m.selects.IsSelectStar() }

// SelectColumns returns the output column names in SQL order.
func (m *Model) SelectColumns() []string { return m.selects.Names() }

func (m *Model) Pagination() Pagination { return m.pagination }

func (m *Model) body() string {
	var b strings.Builder
	b.WriteString(" FROM ")
	b.WriteString(m.from)
	if m.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(m.where)
	}
	return b.String()
}

// SQL is the page query.
func (m *Model) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(m.selects.ToSQL())
	b.WriteString(m.body())
	if order := m.sort.ToSQL(); order != "" {
		b.WriteString(" ")
		b.WriteString(order)
	}
	b.WriteString(m.pagination.ToSQL(NewParameters()))
	return b.String()
}

// Parameters are the bindings of SQL, pagination last.
func (m *Model) Parameters() *Parameters {
	page := NewParameters()
	m.pagination.ToSQL(page)
	return m.params.merge(page)
}

// CountSQL counts every row matching the query, ignoring sort and paging.
func (m *Model) CountSQL() string {
	return "SELECT COUNT(*)" + m.body()
}

// CountParameters are the bindings of CountSQL and DistinctBenefactorSQL.
func (m *Model) CountParameters() *Parameters {
	return m.params.merge(NewParameters())
}

// DistinctBenefactorSQL lists the benefactors of matching rows. The limit is
// inlined and must be positive.
func (m *Model) DistinctBenefactorSQL(limit int64) (string, error) {
	if limit <= 0 {
		return "", fmt.Errorf("benefactor limit %d: %w", limit, ErrInvalidPagination)
	}
	return "SELECT DISTINCT " + ObjectAlias + ".BENEFACTOR_ID" + m.body() + " LIMIT " + strconv.FormatInt(limit, 10), nil
}
