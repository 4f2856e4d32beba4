package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

var areaPattern = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(sq\.?\s*ft\.?|square\s*feet|acres?)?`)

// parseArea best-effort parses a preliminary size string into square
// feet, converting acres (1 acre = 43,560 sq ft) when that unit is named.
func parseArea(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	m := areaPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	numeric := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(strings.ToLower(m[2]), "acre") {
		v *= 43_560
	}
	return v, true
}
