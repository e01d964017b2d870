package geo

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

var clockLayouts = []string{"15:04:05", "15:04", "3:04 PM", "3:04PM"}

// ParseTime accepts the date encodings seen in inspection documents.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Timestamp assembles the moment an inspection was taken: the date and time
// fields when present, else inspectionDate, else createdAt.
func Timestamp(doc map[string]any) (time.Time, bool) {
	date, _ := doc["date"].(string)
	if d, ok := ParseTime(date); ok {
		clock, _ := doc["time"].(string)
		clock = strings.TrimSpace(clock)
		if clock != "" && len(date) <= len("2006-01-02") {
			for _, l := range clockLayouts {
				if c, err := time.Parse(l, clock); err == nil {
					return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, time.UTC), true
				}
			}
		}
		return d, true
	}
	for _, f := range []string{"inspectionDate", "createdAt"} {
		if s, ok := doc[f].(string); ok {
			if t, ok := ParseTime(s); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
