package util

import (
	"fmt"
	"strings"
	"time"

	iso8601 "github.com/senseyeio/duration"
)

var durationReference = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseISODuration reads an ISO8601 duration such as PT2M30S. Empty is zero.
func ParseISODuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	parsed, err := iso8601.ParseISO8601(value)
	if err != nil {
		return 0, fmt.Errorf("invalid ISO8601 duration %q: %w", value, err)
	}

	return parsed.Shift(durationReference).Sub(durationReference), nil
}

// FormatISODuration writes whole seconds as an ISO8601 duration, with a leading
// minus sign for negative margins.
func FormatISODuration(d time.Duration) string {
	var builder strings.Builder

	if d < 0 {
		builder.WriteString("-")
		d = -d
	}
	d = d.Round(time.Second)

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second

	builder.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&builder, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&builder, "%dM", minutes)
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		fmt.Fprintf(&builder, "%dS", seconds)
	}

	return builder.String()
}
