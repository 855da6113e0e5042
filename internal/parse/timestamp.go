package parse

import (
	"fmt"
	"strings"
	"time"
)

// localLayout is a wall-clock timestamp without offset. Fractional seconds are accepted when parsing.
const localLayout = "2006-01-02T15:04:05"

// Timestamp parses a client-supplied action time. An empty value means now.
// Values without an offset are taken as UTC.
func Timestamp(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(localLayout, s, time.UTC); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", raw)
}
