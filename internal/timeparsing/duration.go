package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactPattern matches [+-]?<digits><unit> where unit is one of
// h, d, w, m, y. No sign means future, like +.
var compactPattern = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration shifts now by a compact duration expression:
// "+6h" is six hours ahead, "-1d" one day back, "2w" two weeks ahead.
// Hours use exact arithmetic; days, weeks, months, and years go
// through AddDate, so calendar oddities (DST, month lengths) follow
// Go's normalization.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("duration amount %q: %w", m[2], err)
	}
	if m[1] == "-" {
		n = -n
	}

	return shift(now, n, m[3]), nil
}

func shift(base time.Time, n int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(n) * time.Hour)
	case "d":
		return base.AddDate(0, 0, n)
	case "w":
		return base.AddDate(0, 0, n*7)
	case "m":
		return base.AddDate(0, n, 0)
	case "y":
		return base.AddDate(n, 0, 0)
	default:
		// Unreachable while compactPattern gates the unit.
		return base
	}
}

// IsCompactDuration reports whether s is a compact duration expression.
func IsCompactDuration(s string) bool {
	return compactPattern.MatchString(s)
}
