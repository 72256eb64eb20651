package query

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
)

// IDPrefix is the prefix carried by external entity ids, as in "syn123".
const IDPrefix = "syn"

// prefixedID accepts "syn123", "SYN123", "123" and a trailing ".<version>".
var prefixedID = regexp.MustCompile(`^(?i:` + IDPrefix + `)?(\d+)(?:\.\d+)?$`)

// TransformID coerces external entity ids into numeric ids for binding.
// Strings are parsed, int64 and int values pass through, and slices and sets
// are transformed element-wise. Typed integer slices become []int64. Anything
// else is rejected.
func TransformID(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return parseID(val)
	case int64, int, int32:
		return val, nil
	case []string:
		out := make([]int64, len(val))
		for i, s := range val {
			id, err := parseID(s)
			if err != nil {
				return nil, err
			}
			out[i] = id
		}
		return out, nil
	case []int64:
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			t, err := TransformID(e)
			if err != nil {
				return nil, err
			}
			out[i] = t
		}
		return out, nil
	case map[string]struct{}:
		out := make(map[int64]struct{}, len(val))
		for s := range val {
			id, err := parseID(s)
			if err != nil {
				return nil, err
			}
			out[id] = struct{}{}
		}
		return out, nil
	case map[int64]struct{}:
		return val, nil
	default:
		return transformIntSlice(v)
	}
}

// transformIntSlice widens slices and arrays of any signed or unsigned
// integer kind to []int64.
func transformIntSlice(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedIDType)
	}
	out := make([]int64, rv.Len())
	for i := range rv.Len() {
		e := rv.Index(i)
		switch e.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[i] = e.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := e.Uint()
			if u > math.MaxInt64 {
				return nil, fmt.Errorf("id %d out of range: %w", u, ErrUnsupportedIDType)
			}
			out[i] = int64(u)
		default:
			return nil, fmt.Errorf("%T: %w", v, ErrUnsupportedIDType)
		}
	}
	return out, nil
}

func parseID(s string) (int64, error) {
	m := prefixedID.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("malformed id %q: %w", s, ErrUnsupportedIDType)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed id %q: %w", s, err)
	}
	return id, nil
}
