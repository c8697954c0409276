package attr

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses s as a float64. Unparsable input yields NaN.
func ParseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// FormatNumber renders f the way clients expect numeric attributes:
// integers without a decimal point, "NaN" and "Infinity" spelled out, and
// exponent notation only for very large or very small magnitudes.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Stringify converts a decoded JSON value to its attribute string form.
// Composite values are stored as their JSON encoding.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return FormatNumber(x)
	case float32:
		return FormatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ToNumber converts a decoded JSON value to float64; strings are parsed and
// anything else yields NaN.
func ToNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		return ParseNumber(x.String())
	case string:
		return ParseNumber(x)
	default:
		return math.NaN()
	}
}
