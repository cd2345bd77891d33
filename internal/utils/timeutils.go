package utils

import (
	"fmt"
	"strings"
	"time"
)

// sensorTimeLayouts lists the timestamp shapes emitted by the supported
// dataloggers, most specific first. Layouts without a zone parse as UTC.
var sensorTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/06 15:04",
}

// ParseSensorTime parses a datalogger timestamp, trying each supported layout
// in order.
func ParseSensorTime(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time value: %w", ErrMalformedInput)
	}
	for _, layout := range sensorTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time value %q: %w", value, ErrMalformedInput)
}

// FloorWindow truncates t down to the start of its aggregation window.
func FloorWindow(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		interval = time.Hour
	}
	return t.Truncate(interval)
}

// ElapsedSeconds returns the signed seconds from start to t.
func ElapsedSeconds(start, t time.Time) float64 {
	return t.Sub(start).Seconds()
}
