package jsonmap

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gorm.io/datatypes"
)

// FromValues converts a plain metrics map into a GORM JSON map value.
func FromValues(values map[string]interface{}) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range values {
		out[key] = value
	}
	return out
}

// ToStringMap converts a JSON map into a string map.
func ToStringMap(values datatypes.JSONMap) map[string]string {
	if len(values) == 0 {
		return map[string]string{}
	}

	out := make(map[string]string, len(values))
	for key, value := range values {
		if str, ok := value.(string); ok {
			out[key] = str
			continue
		}
		out[key] = fmt.Sprint(value)
	}
	return out
}

// Number extracts a finite numeric value. NaN and infinities are
// reported as absent, as are strings that do not parse as numbers.
// JSONMap values read back from the database arrive as json.Number.
func Number(value interface{}) (float64, bool) {
	var f float64

	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Numbers returns the finite numeric entries of a JSON map.
func Numbers(values datatypes.JSONMap) map[string]float64 {
	out := make(map[string]float64, len(values))
	for key, value := range values {
		if f, ok := Number(value); ok {
			out[key] = f
		}
	}
	return out
}
