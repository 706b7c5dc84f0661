package odata

import (
	"strings"
	"time"
)

// dateLayout is the calendar date format Business Central expects in filters.
const dateLayout = "2006-01-02"

// FormatDate returns the YYYY-MM-DD portion of an ISO-8601 date or date-time
// string. It is a textual truncation: no timezone conversion is applied, so
// "2024-06-15T23:30:00-05:00" yields "2024-06-15". Plain dates pass through
// unchanged and an empty input yields an empty string.
func FormatDate(value string) string {
	if value == "" {
		return ""
	}
	if i := strings.IndexByte(value, 'T'); i >= 0 {
		return value[:i]
	}
	return value
}

// FormatTime returns the calendar date of t as written in its own location.
// A zero time yields an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
