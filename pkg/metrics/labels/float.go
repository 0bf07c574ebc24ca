package labels

import (
	"bytes"
	"math"
	"strconv"
)

// AppendFloat appends the text exposition form of v to b.
//
// Both formats spell the special values +Inf, -Inf and NaN. The OpenMetrics
// form additionally forces a decimal point on integral values ("1.0" rather
// than "1") unless the shortest representation already uses an exponent.
func AppendFloat(b []byte, v float64, openMetrics bool) []byte {
	switch {
	case math.IsNaN(v):
		return append(b, "NaN"...)
	case math.IsInf(v, +1):
		return append(b, "+Inf"...)
	case math.IsInf(v, -1):
		return append(b, "-Inf"...)
	}
	start := len(b)
	b = strconv.AppendFloat(b, v, 'g', -1, 64)
	if openMetrics && !bytes.ContainsAny(b[start:], "e.") {
		b = append(b, '.', '0')
	}
	return b
}

// FormatFloat returns the text exposition form of v.
func FormatFloat(v float64, openMetrics bool) string {
	return string(AppendFloat(nil, v, openMetrics))
}
