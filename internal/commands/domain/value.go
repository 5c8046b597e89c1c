package commands

import (
	"math"
	"strconv"
	"strings"
)

// maxExactInt bounds integral floats rendered as integers.
const maxExactInt = 1 << 63

// NormalizeValue returns the canonical text of a point value. Integers keep
// full int64 precision; other numbers are rendered in their shortest form so
// "10", "10.0" and "1e1" agree. Boolean words map to "1" and "0".
func NormalizeValue(value string) string {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "true", "on":
		return "1"
	case "false", "off":
		return "0"
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		if f == math.Trunc(f) && math.Abs(f) < maxExactInt {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return trimmed
}

// ValuesEqual reports whether a reported value matches the requested one.
func ValuesEqual(requested, reported string) bool {
	return NormalizeValue(requested) == NormalizeValue(reported)
}
