package bgeigie

import (
	"fmt"
	"strings"
)

// Checksum computes the bGeigie/NMEA checksum of a payload: the XOR of
// every byte between '$' and '*' (both excluded), formatted as two
// uppercase hex digits.
func Checksum(payload string) string {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("%02X", ck)
}

// Verify recomputes the checksum of a full sentence and compares it
// against the token following '*'. Sentences without both markers, or
// without a two-digit token, are checksum-invalid.
func Verify(line string) bool {
	line = strings.TrimSpace(line)
	start := strings.IndexByte(line, '$')
	star := strings.LastIndexByte(line, '*')
	if start == -1 || star == -1 || star < start {
		return false
	}
	tok := strings.TrimSpace(line[star+1:])
	if len(tok) < 2 {
		return false
	}
	return Checksum(line[start+1:star]) == strings.ToUpper(tok[:2])
}
