package format

import (
	"fmt"
	"math"
	"time"
)

// PValue formats a p-value, falling back to "n/a" when the test failed or
// was undefined.
func PValue(p float64, err error) string {
	if err != nil || math.IsNaN(p) {
		return "n/a"
	}
	if p != 0 && p < 1e-4 {
		return fmt.Sprintf("%.3e", p)
	}
	return fmt.Sprintf("%.4f", p)
}

// Float formats v with two decimals, or "n/a" for NaN.
func Float(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// Duration formats d as "Xm Ys" or "Ys".
func Duration(d time.Duration) string {
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}
