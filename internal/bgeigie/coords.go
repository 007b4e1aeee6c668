package bgeigie

import (
	"strconv"
	"strings"
)

// ToDecimalDegrees converts a degrees-and-minutes coordinate plus
// hemisphere letter to signed decimal degrees.
//
// Latitude is ddmm.mmmm, longitude dddmm.mmmm. The degree/minute split
// follows the decimal point, not a fixed width: minutes are the two
// digits immediately before the dot plus the fraction, degrees are
// whatever precedes them. S and W negate the result.
//
// Empty or malformed input yields 0. That is the unknown-coordinate
// sentinel, not a reading; downstream filtering rejects near-origin
// pairs for exactly this reason.
func ToDecimalDegrees(raw, hemi string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	dot := strings.IndexByte(raw, '.')
	intPart := raw
	if dot != -1 {
		intPart = raw[:dot]
	}
	if len(intPart) < 3 {
		return 0
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0
	}
	mins, err := strconv.ParseFloat(raw[len(intPart)-2:], 64)
	if err != nil {
		return 0
	}

	dec := float64(deg) + mins/60.0
	switch strings.ToUpper(strings.TrimSpace(hemi)) {
	case "S", "W":
		dec = -dec
	}
	return dec
}
