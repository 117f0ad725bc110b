// Package convert normalises property values on their way into and out of
// the graph store.
//
// Source adapters, the JSON codec of the badger store and the Bolt driver
// all hand out numbers in different Go types. Everything stored in a node
// is reduced to string, int64, float64, bool or []string, so equality
// (unique constraints, property lookups) does not depend on where a value
// came from.
//
// Example:
//
//	if i, ok := convert.ToInt64(json.Number("42")); ok {
//		// i == 42
//	}
package convert

import (
	"encoding/json"
	"strconv"
)

// ToFloat64 converts numeric types, json.Number and numeric strings to
// float64. Returns (0, false) when v is not a number.
func ToFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ToInt64 converts integer types, json.Number and numeric strings to int64.
// Floats are truncated toward zero.
//
//	i, ok := ToInt64(3.7)       // (3, true)
//	i, ok := ToInt64("123")     // (123, true)
//	i, ok := ToInt64("invalid") // (0, false)
func ToInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
