package replenishment

import (
	"math"
	"time"
)

// roundFloat rounds v to the given number of decimal places.
func roundFloat(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}

	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// roundPtr rounds a nullable forecast, keeping nil as nil.
func roundPtr(v *float64, decimals int) *float64 {
	if v == nil {
		return nil
	}
	r := roundFloat(*v, decimals)
	return &r
}

// truncateDay drops the clock part of t, keeping its location.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween returns the whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(math.Round(truncateDay(b).Sub(truncateDay(a)).Hours() / 24))
}
