// Package num provides the deterministic rounding used across the pipeline.
// Every stage rounds the same way so repeated runs reproduce byte-for-byte.
package num

import "github.com/shopspring/decimal"

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Round6 rounds to six decimal places, the pipeline-wide weight precision.
func Round6(v float64) float64 { return Round(v, 6) }

// Round4 rounds to four decimal places, used for confidence scores.
func Round4(v float64) float64 { return Round(v, 4) }

// Clamp bounds v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
