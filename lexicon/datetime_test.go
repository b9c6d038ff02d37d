package lexicon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatetimeMarshal(t *testing.T) {
	tests := []struct {
		name  string
		input time.Time
		want  string
	}{
		{
			name:  "millisecond precision",
			input: time.Date(2024, 7, 9, 1, 2, 3, 156000000, time.UTC),
			want:  `"2024-07-09T01:02:03.156Z"`,
		},
		{
			name:  "whole seconds keep fractional digits",
			input: time.Date(2024, 7, 9, 1, 2, 3, 0, time.UTC),
			want:  `"2024-07-09T01:02:03.000Z"`,
		},
		{
			name:  "non-utc input normalized",
			input: time.Date(2024, 7, 9, 14, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
			want:  `"2024-07-09T12:30:00.000Z"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(NewDatetime(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDatetimeUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "canonical form",
			input: `"2024-07-09T01:02:03.156Z"`,
			want:  time.Date(2024, 7, 9, 1, 2, 3, 156000000, time.UTC),
		},
		{
			name:  "no fractional seconds",
			input: `"2024-07-09T01:02:03Z"`,
			want:  time.Date(2024, 7, 9, 1, 2, 3, 0, time.UTC),
		},
		{
			name:  "nanosecond precision",
			input: `"2024-07-09T01:02:03.123456789Z"`,
			want:  time.Date(2024, 7, 9, 1, 2, 3, 123456789, time.UTC),
		},
		{
			name:  "timezone offset normalized to utc",
			input: `"2024-07-09T14:30:00+02:00"`,
			want:  time.Date(2024, 7, 9, 12, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Datetime
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.True(t, d.Equal(tt.want), "got %v, want %v", d.Time, tt.want)
			assert.Equal(t, time.UTC, d.Location())
		})
	}
}

func TestDatetimeUnmarshalInvalid(t *testing.T) {
	for _, input := range []string{
		`"yesterday"`,
		`"2024-07-09"`,
		`"2024-07-09 01:02:03Z"`,
		`"01:02:03"`,
		`1720486923`,
		`null`,
	} {
		t.Run(input, func(t *testing.T) {
			var d Datetime
			assert.Error(t, json.Unmarshal([]byte(input), &d))
		})
	}
}

func TestDatetimeRoundTrip(t *testing.T) {
	original := NewDatetime(time.Date(2024, 7, 9, 1, 2, 3, 156000000, time.UTC))

	encoded, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Datetime
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, original, decoded)
}
