package controllers

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "rfc3339",
			input: "2025-03-10T07:30:00+07:00",
			want:  time.Date(2025, 3, 10, 7, 30, 0, 0, wib),
		},
		{
			name:  "mysql datetime",
			input: "2025-03-10 13:45:00",
			want:  time.Date(2025, 3, 10, 13, 45, 0, 0, wib),
		},
		{
			name:  "datetime-local input",
			input: "2025-03-10T09:15",
			want:  time.Date(2025, 3, 10, 9, 15, 0, 0, wib),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTimestamp(tc.input, wib)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseTimestampEmptyAndInvalid(t *testing.T) {
	got, err := parseTimestamp("", time.UTC)
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero time for empty input, got %v %v", got, err)
	}
	if _, err := parseTimestamp("kemarin", time.UTC); err == nil {
		t.Fatalf("expected error for invalid input")
	}
}
