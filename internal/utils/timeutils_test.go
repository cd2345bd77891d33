package utils

import (
	"errors"
	"testing"
	"time"
)

func TestParseSensorTimeLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-15T10:05:00Z", time.Date(2024, 3, 15, 10, 5, 0, 0, time.UTC)},
		{"2024-03-15T10:05:07", time.Date(2024, 3, 15, 10, 5, 7, 0, time.UTC)},
		{"2024-03-15 10:05:07", time.Date(2024, 3, 15, 10, 5, 7, 0, time.UTC)},
		{"2024-03-15 10:05", time.Date(2024, 3, 15, 10, 5, 0, 0, time.UTC)},
		{"03/15/24 10:05", time.Date(2024, 3, 15, 10, 5, 0, 0, time.UTC)},
		{"  2024-03-15T10:05:00Z  ", time.Date(2024, 3, 15, 10, 5, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		got, err := ParseSensorTime(tc.in)
		if err != nil {
			t.Fatalf("ParseSensorTime(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseSensorTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseSensorTimeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-time", "15/03/2024"} {
		if _, err := ParseSensorTime(in); !errors.Is(err, ErrMalformedInput) {
			t.Fatalf("ParseSensorTime(%q): expected malformed input, got %v", in, err)
		}
	}
}

func TestFloorWindow(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 59, 59, 0, time.UTC)
	if got := FloorWindow(base, time.Hour); !got.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected floor to 10:00, got %v", got)
	}

	exact := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	if got := FloorWindow(exact, time.Hour); !got.Equal(exact) {
		t.Fatalf("exact hour should be its own window start, got %v", got)
	}

	// Zero interval falls back to hourly windows.
	if got := FloorWindow(base, 0); !got.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected hourly fallback, got %v", got)
	}
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	if got := ElapsedSeconds(start, start.Add(90*time.Second)); got != 90 {
		t.Fatalf("expected 90 seconds, got %v", got)
	}
	if got := ElapsedSeconds(start, start.Add(-30*time.Second)); got != -30 {
		t.Fatalf("expected -30 seconds, got %v", got)
	}
}
