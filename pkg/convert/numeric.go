// Package convert provides value conversion helpers shared by the schema,
// storage and tool layers.
//
// Tool arguments arrive as decoded JSON, so every number is a float64 and
// string-typed ids are common. Stores hand back int32, int64 or json.Number
// depending on the backend. The helpers here collapse those shapes into the
// small set of scalar kinds properties are allowed to hold: string, int64,
// bool and (non-integral) float64.
//
// All conversion functions return a success boolean so callers can attach
// their own typed failure.
//
// Example:
//
//	if n, ok := convert.ToInt64(args["id"]); ok {
//		// use n
//	}
package convert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToInt64 converts v to an int64 without losing information.
// Returns (value, true) on success, (0, false) on failure.
//
// Supported inputs:
//   - signed and unsigned integers (uint64 above MaxInt64 fails)
//   - float64 and float32 holding an integral value ("3.0" is fine, 3.7 fails)
//   - json.Number holding an integer
//   - decimal strings, surrounding whitespace ignored ("42", " -7 ")
//
// Booleans, nil and everything else fail.
//
// Example:
//
//	i, ok := ToInt64(float64(42)) // Returns (42, true)
//	i, ok := ToInt64("123")       // Returns (123, true)
//	i, ok := ToInt64(3.7)         // Returns (0, false)
//	i, ok := ToInt64("x")         // Returns (0, false)
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
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float64:
		return integralFloat(val)
	case float32:
		return integralFloat(float64(val))
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return integralFloat(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToScalar normalizes a property value to one of the allowed scalar kinds:
// string, bool or int64. Integral numbers become int64. Returns (nil, false)
// for nil, fractional or non-finite numbers, maps, slices and any other type.
func ToScalar(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case string, bool:
		return val, true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		f, err := val.Float64()
		if err != nil {
			return nil, false
		}
		return floatScalar(f)
	case float64:
		return floatScalar(val)
	case float32:
		return floatScalar(float64(val))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, ok := ToInt64(val)
		if !ok {
			return nil, false
		}
		return i, true
	}
	return nil, false
}

func floatScalar(f float64) (interface{}, bool) {
	if i, ok := integralFloat(f); ok {
		return i, true
	}
	return nil, false
}
