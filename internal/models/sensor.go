package models

import "time"

// SensorRecord is one parsed datalogger report. Values holds every numeric
// field of the payload keyed by its source column name; non-numeric and
// unparseable fields are absent.
type SensorRecord struct {
	Time   time.Time
	Values map[string]float64
}

// Value returns the named reading and whether it was present and finite.
func (r SensorRecord) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}
