package query

import "fmt"

const (
	limitBindName  = "bLimit"
	offsetBindName = "bOffset"

	// DefaultLimit applies when a query does not ask for a page size.
	DefaultLimit int64 = 50
	MaxLimit     int64 = 10000
)

type Pagination struct {
	Limit  int64
	Offset int64
}

func NewPagination(limit, offset int64) (Pagination, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return Pagination{}, fmt.Errorf("limit %d: %w", limit, ErrInvalidPagination)
	}
	if offset < 0 {
		return Pagination{}, fmt.Errorf("offset %d: %w", offset, ErrInvalidPagination)
	}
	return Pagination{Limit: limit, Offset: offset}, nil
}

// ToSQL binds exactly bLimit and bOffset.
func (p Pagination) ToSQL(params *Parameters) string {
	params.Put(limitBindName, p.Limit)
	params.Put(offsetBindName, p.Offset)
	return " LIMIT :" + limitBindName + " OFFSET :" + offsetBindName
}
