package query

import "errors"

var (
	ErrNilArgument        = errors.New("required argument is missing")
	ErrUnknownColumn      = errors.New("column cannot be resolved")
	ErrUnsupportedIDType  = errors.New("unsupported id type")
	ErrInvalidComparator  = errors.New("invalid comparator")
	ErrInvalidPagination  = errors.New("invalid pagination")
	ErrInvalidFilterValue = errors.New("invalid filter value")
)
