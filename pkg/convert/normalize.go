package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite is returned for NaN and infinite numbers, which have no JSON
// or Cypher property representation.
var ErrNonFinite = errors.New("non-finite number")

// CheckFinite returns ErrNonFinite when v is a NaN or infinite float.
func CheckFinite(v any) error {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return nil
}

// Normalize reduces v to one of the stored property types: string, int64,
// float64, bool, []string or nil. Other lists are rendered element-wise to
// strings; values of unknown type are rendered with fmt.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val
	case int, int32, int16, int8, uint, uint32, uint16, uint8, uint64:
		i, _ := ToInt64(val)
		return i
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []string:
		return append([]string(nil), val...)
	case []any:
		return CompactStrings(val)
	}
	return String(v)
}

// NormalizeProperties returns a normalised copy of props.
func NormalizeProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = Normalize(v)
	}
	return out
}

// Key returns a string that is equal for equal stored values, regardless of
// the numeric type they arrived in. Integral floats compare equal to ints.
func Key(v any) string {
	switch val := Normalize(v).(type) {
	case nil:
		return "null:"
	case string:
		return "s:" + val
	case bool:
		if val {
			return "b:true"
		}
		return "b:false"
	case int64:
		return "n:" + String(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return "n:" + String(int64(val))
		}
		return "n:" + String(val)
	case []string:
		key := "l:"
		for i, s := range val {
			if i > 0 {
				key += "\x1f"
			}
			key += s
		}
		return key
	default:
		return "?:" + String(val)
	}
}
