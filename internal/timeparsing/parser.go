// Package timeparsing resolves the time expressions accepted by CLI
// filters such as --after and --before. An expression is tried against
// three layers in order: compact durations (+6h, -1d, +2w), absolute
// timestamps (date-only or RFC3339), and finally English phrases
// ("tomorrow", "last monday 3pm").
package timeparsing

import (
	"fmt"
	"time"
)

// ParseRelativeTime resolves expr against now, trying each layer in
// order. Compact durations are checked first so "+1d" stays exact day
// arithmetic, and absolute timestamps are checked before the phrase
// layer so a timestamp is never reinterpreted by a looser rule.
func ParseRelativeTime(expr string, now time.Time) (time.Time, error) {
	if IsCompactDuration(expr) {
		return ParseCompactDuration(expr, now)
	}
	if t, err := time.ParseInLocation("2006-01-02", expr, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}
	if t, err := ParseNaturalLanguage(expr, now); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time expression %q (try +6h, -1d, \"yesterday\", or 2006-01-02)", expr)
}
