package exporter

import (
	"math"
	"strconv"
)

// formatFloat renders a metric for CSV output. NaN (undefined volatility)
// becomes an empty cell; other values use the shortest exact representation
// so repeated exports are byte-identical.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// nullableFloat marshals NaN as JSON null; encoding/json rejects NaN
type nullableFloat float64

// MarshalJSON implements json.Marshaler
func (f nullableFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}
