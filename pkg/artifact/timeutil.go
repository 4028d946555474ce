package artifact

import (
	"math"
	"strings"
	"time"
)

// DisplayLayout is the calendar format used for every timestamp shown in a
// report.
const DisplayLayout = "2006-01-02 15:04:05"

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime interprets an ISO-8601 string or a Unix epoch number. Naive
// strings are read in loc. Zero epochs and empty strings are not times.
func ParseTime(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if IsNumeric(v) {
		sec := Number(v)
		if sec == 0 {
			return time.Time{}, false
		}
		return FromEpoch(sec).In(loc), true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseTimeString(s, loc)
}

// ParseTimeString parses the ISO-8601 forms found in scan artifacts.
func ParseTimeString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromEpoch converts fractional Unix seconds to a time.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

// Within reports whether t lies strictly after now minus window.
func Within(t, now time.Time, window time.Duration) bool {
	return t.After(now.Add(-window))
}
