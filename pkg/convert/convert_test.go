package convert

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected float64
		ok       bool
	}{
		{"float64", 3.14, 3.14, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 42, 42.0, true},
		{"int64", int64(99), 99.0, true},
		{"json number", json.Number("1.5"), 1.5, true},
		{"string decimal", "3.14", 3.14, true},
		{"string invalid", "hello", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ToFloat64(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
		ok       bool
	}{
		{"int64", int64(7), 7, true},
		{"int", 42, 42, true},
		{"uint32", uint32(5), 5, true},
		{"float truncated", 3.7, 3, true},
		{"json int", json.Number("9007199254740993"), 9007199254740993, true},
		{"json float", json.Number("2.9"), 2, true},
		{"string", "123", 123, true},
		{"string float", "4.5", 4, true},
		{"string invalid", "abc", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ToInt64(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCompactStrings(t *testing.T) {
	got := CompactStrings([]any{"a", nil, int64(3), 1.5, true, nil})
	assert.Equal(t, []string{"a", "3", "1.5", "true"}, got)
	assert.Equal(t, []string{}, CompactStrings(nil))
}

func TestToStringSlice(t *testing.T) {
	assert.Equal(t, []string{"x", "y"}, ToStringSlice([]interface{}{"x", "y"}))
	assert.Nil(t, ToStringSlice([]interface{}{"x", 1}))
	assert.Nil(t, ToStringSlice(42))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(4), Normalize(4))
	assert.Equal(t, int64(4), Normalize(uint8(4)))
	assert.Equal(t, 2.5, Normalize(float32(2.5)))
	assert.Equal(t, int64(12), Normalize(json.Number("12")))
	assert.Equal(t, 0.25, Normalize(json.Number("0.25")))
	assert.Equal(t, []string{"a", "b"}, Normalize([]any{"a", nil, "b"}))
	assert.Nil(t, Normalize(nil))

	props := NormalizeProperties(map[string]any{"dbId": 100, "name": []interface{}{"x"}})
	assert.Equal(t, map[string]any{"dbId": int64(100), "name": []string{"x"}}, props)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key(int64(100)), Key(100.0))
	assert.Equal(t, Key(100), Key(json.Number("100")))
	assert.NotEqual(t, Key("100"), Key(100))
	assert.NotEqual(t, Key(1.5), Key(1))
	assert.Equal(t, Key([]string{"a", "b"}), Key([]any{"a", "b"}))
	assert.NotEqual(t, Key(true), Key("true"))
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, CheckFinite(1.5))
	assert.NoError(t, CheckFinite(int64(3)))
	assert.NoError(t, CheckFinite("NaN"))
	assert.NoError(t, CheckFinite(nil))
	assert.ErrorIs(t, CheckFinite(math.NaN()), ErrNonFinite)
	assert.ErrorIs(t, CheckFinite(math.Inf(1)), ErrNonFinite)
	assert.ErrorIs(t, CheckFinite(float32(math.Inf(-1))), ErrNonFinite)
}
