package parser

import (
	"strconv"
	"strings"
)

// expectedTotalWidth is the width of the record count at the end of a header
const expectedTotalWidth = 5

// ScanHeader returns the record count declared by the first header line, or
// 0 when there is no header or its count is not numeric.
func (f Feed) ScanHeader(lines []string) int {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, f.HeaderMarker) {
			continue
		}
		if len(trimmed) < expectedTotalWidth {
			return 0
		}
		n, err := strconv.ParseUint(trimmed[len(trimmed)-expectedTotalWidth:], 10, 32)
		if err != nil {
			return 0
		}
		return int(n)
	}
	return 0
}

// Accepts reports whether line is a candidate movement line. Short lines and
// header lines are dropped here and nowhere else. Only the length is measured
// on the trimmed line; the header marker must start the line itself, so an
// indented header-like line is still a candidate.
func (f Feed) Accepts(line string) bool {
	if len([]rune(strings.TrimSpace(line))) < f.MinLineLength {
		return false
	}
	return !strings.HasPrefix(line, f.HeaderMarker)
}
