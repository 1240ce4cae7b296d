// Small helpers for numeric header values without pulling in fmt.

package ratelimit

import "strconv"

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// no scientific notation for common values
	return strconv.FormatFloat(v, 'f', -1, 64)
}
