// Package datetime provides the date-time helpers shared by the backend
// and its API client: UTC normalization, permissive string parsing and
// the wire format the Functest service expects.
package datetime

import (
	"fmt"
	"strings"
	"time"
)

// WireFormat is the date-time layout the Functest API expects in its
// `from` and `to` query parameters.
const WireFormat = "2006-01-02 15:04:05"

// DefaultDateTime is the epoch sentinel used when a caller does not
// supply a from date. It means "fetch everything".
var DefaultDateTime = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// layouts accepted by Parse, tried in order.
var layouts = []string{
	WireFormat,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UTCNow returns the current time in UTC.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC. The zero time is returned unchanged so
// that "unset" survives normalization.
func ToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// Parse converts a date-time string into a time.Time value. Values
// without an explicit offset are interpreted as UTC. It returns an
// error when the string matches none of the accepted layouts.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("parse datetime: empty value")
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("parse datetime: unrecognized value %q", s)
}

// Format renders a time in the service wire format, in UTC.
func Format(t time.Time) string {
	return t.UTC().Format(WireFormat)
}
