package utils

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing calendar dates from imports
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// ParseDate parses a calendar date in one of the accepted layouts and
// normalizes it to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Midnight(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Midnight truncates t to 00:00 UTC of its calendar day
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateToUnix converts a calendar date string to a Unix timestamp at midnight UTC
func DateToUnix(s string) (int64, error) {
	t, err := ParseDate(s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
