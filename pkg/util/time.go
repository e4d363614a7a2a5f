package util

import (
	"fmt"
	"strings"
	"time"
)

// Accepted timestamp layouts for upstream prediction records, tried in order.
// The legacy layout has no colon in the offset (eg. 2024-05-01T08:15:00+0100).
const (
	TimestampLayoutISO8601 = time.RFC3339Nano
	TimestampLayoutLegacy  = "2006-01-02T15:04:05Z0700"
)

func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	if parsed, err := time.Parse(TimestampLayoutISO8601, value); err == nil {
		return parsed, nil
	}

	if parsed, err := time.Parse(TimestampLayoutLegacy, value); err == nil {
		return parsed, nil
	}

	return time.Time{}, fmt.Errorf("timestamp %q matches neither accepted format", value)
}
