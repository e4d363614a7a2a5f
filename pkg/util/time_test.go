package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{
			name:     "iso8601 with fraction and colon offset",
			input:    "2024-05-01T08:15:30.1234567+01:00",
			expected: time.Date(2024, 5, 1, 7, 15, 30, 123456700, time.UTC),
		},
		{
			name:     "iso8601 zulu without fraction",
			input:    "2024-05-01T08:15:30Z",
			expected: time.Date(2024, 5, 1, 8, 15, 30, 0, time.UTC),
		},
		{
			name:     "legacy offset without colon",
			input:    "2024-05-01T08:15:30+0100",
			expected: time.Date(2024, 5, 1, 7, 15, 30, 0, time.UTC),
		},
		{
			name:     "surrounding whitespace",
			input:    "  2024-05-01T08:15:30Z ",
			expected: time.Date(2024, 5, 1, 8, 15, 30, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(parsed), "expected %s got %s", tt.expected, parsed)
		})
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "tomorrow", "2024-05-01", "01/05/2024 08:15"} {
		_, err := ParseTimestamp(input)
		assert.Error(t, err, input)
	}
}

func TestGetEnvironmentDuration(t *testing.T) {
	env := map[string]string{
		"SECONDS":  "45",
		"FRACTION": "2.5",
		"GO":       "1m30s",
		"BROKEN":   "soon",
	}

	assert.Equal(t, 45*time.Second, GetEnvironmentDuration(env, "SECONDS", time.Second))
	assert.Equal(t, 2500*time.Millisecond, GetEnvironmentDuration(env, "FRACTION", time.Second))
	assert.Equal(t, 90*time.Second, GetEnvironmentDuration(env, "GO", time.Second))
	assert.Equal(t, time.Second, GetEnvironmentDuration(env, "BROKEN", time.Second))
	assert.Equal(t, time.Minute, GetEnvironmentDuration(env, "MISSING", time.Minute))
}

func TestRemoveDuplicateStrings(t *testing.T) {
	result := RemoveDuplicateStrings([]string{"victoria", "", "central", "victoria", "jubilee"}, []string{"jubilee"})

	assert.Equal(t, []string{"victoria", "central"}, result)
}
