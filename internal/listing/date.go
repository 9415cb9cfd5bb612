package listing

import (
	"strings"
	"time"
)

// dateLayouts are tried in order. Values without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	DateLayout,
}

// DateResult is the outcome of parsing a scrape date.
type DateResult struct {
	Time time.Time
	OK   bool
}

// ParseDate accepts ISO-8601 date-times and plain YYYY-MM-DD dates.
func ParseDate(value string) DateResult {
	value = strings.TrimSpace(value)
	if value == "" {
		return DateResult{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return DateResult{Time: t, OK: true}
		}
	}
	return DateResult{}
}
