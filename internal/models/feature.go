package models

import (
	"encoding/json"
	"math"
	"time"
)

// FeatureSource identifies the windowing stage in published feature messages.
const FeatureSource = "preprocessing_predictive"

// FloatOrNull marshals NaN and infinities as JSON null where a bare float64
// would make encoding/json fail. Null unmarshals back to NaN.
type FloatOrNull float64

// MarshalJSON implements json.Marshaler.
func (f FloatOrNull) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FloatOrNull) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = FloatOrNull(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FloatOrNull(v)
	return nil
}

// FeatureRow is one aggregated row per closed window. Values is keyed by
// derived column name (for a variable v: v__mean through v__range plus
// v__slope). Undefined statistics are stored as NaN and rendered as null in
// JSON or as an empty CSV cell.
type FeatureRow struct {
	WindowStart time.Time
	Values      map[string]float64
}

// FeatureMessage is the wire form of a FeatureRow on the feature topic.
type FeatureMessage struct {
	Timestamp *string                `json:"timestamp"`
	Features  map[string]FloatOrNull `json:"features"`
	Source    string                 `json:"source"`
}

// NewFeatureMessage converts a FeatureRow for publication. A zero window
// start becomes a null timestamp.
func NewFeatureMessage(row FeatureRow) FeatureMessage {
	msg := FeatureMessage{
		Features: make(map[string]FloatOrNull, len(row.Values)),
		Source:   FeatureSource,
	}
	if !row.WindowStart.IsZero() {
		ts := row.WindowStart.Format(time.RFC3339)
		msg.Timestamp = &ts
	}
	for name, v := range row.Values {
		msg.Features[name] = FloatOrNull(v)
	}
	return msg
}
