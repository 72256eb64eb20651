package query

import "fmt"

// SortList is the optional ORDER BY clause. A nil *SortList renders nothing.
type SortList struct {
	ref       *ColumnReference
	ascending bool
}

// NewSortList returns nil when column is empty.
func NewSortList(column string, ascending bool, indexes *IndexProvider, fields NodeFields) (*SortList, error) {
	if column == "" {
		return nil, nil
	}
	if indexes == nil {
		return nil, fmt.Errorf("index provider: %w", ErrNilArgument)
	}
	ref, err := NewColumnReference(column, indexes.NextIndex(), fields)
	if err != nil {
		return nil, err
	}
	if err := ref.physical(); err != nil {
		return nil, err
	}
	return &SortList{ref: ref, ascending: ascending}, nil
}

// ToSQL orders annotation columns by A<i>.STRING_VALUE, the same value column
// the select list reads.
func (s *SortList) ToSQL() string {
	if s == nil {
		return ""
	}
	dir := "DESC"
	if s.ascending {
		dir = "ASC"
	}
	return "ORDER BY " + s.ref.ToSQL() + " " + dir
}

func (s *SortList) Annotations() []*ColumnReference {
	if s == nil || !s.ref.annotation {
		return nil
	}
	return []*ColumnReference{s.ref}
}
