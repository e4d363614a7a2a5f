package routes

import (
	"time"

	"github.com/travigo/catchtrain/pkg/util"
)

func parseDuration(value string) (time.Duration, error) {
	return util.ParseISODuration(value)
}

func formatDuration(d time.Duration) string {
	return util.FormatISODuration(d)
}

func formatDurations(durations []time.Duration) []string {
	formatted := make([]string, 0, len(durations))
	for _, d := range durations {
		formatted = append(formatted, formatDuration(d))
	}
	return formatted
}
