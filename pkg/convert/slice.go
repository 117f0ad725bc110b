package convert

import (
	"fmt"
	"strconv"
)

// ToStringSlice converts []string or a []interface{} holding only strings.
// Returns nil for anything else.
func ToStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			result[i] = s
		}
		return result
	}
	return nil
}

// CompactStrings renders the non-nil entries of values as strings, keeping
// their order. Used for primitive list attributes.
func CompactStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		out = append(out, String(v))
	}
	return out
}

// String renders a scalar the way it is stored in a string array.
func String(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	if i, ok := ToInt64(v); ok {
		return strconv.FormatInt(i, 10)
	}
	return fmt.Sprint(v)
}
