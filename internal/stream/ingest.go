package stream

import (
	"encoding/json"
	"fmt"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// DecodeRecord parses one raw sensor payload. Numeric fields are collected
// into the record's value map; string fields holding comma-decimal numbers
// are normalised and parsed; everything else is ignored. A payload without a
// parseable "time" field is malformed.
func DecodeRecord(payload []byte) (models.SensorRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(utils.ScrubNonFiniteJSON(payload), &raw); err != nil {
		return models.SensorRecord{}, fmt.Errorf("decode record: %v: %w", err, utils.ErrMalformedInput)
	}

	tv, ok := raw["time"].(string)
	if !ok {
		return models.SensorRecord{}, fmt.Errorf("record has no time field: %w", utils.ErrMalformedInput)
	}
	t, err := utils.ParseSensorTime(tv)
	if err != nil {
		return models.SensorRecord{}, err
	}

	values := make(map[string]float64, len(raw))
	for name, v := range raw {
		if name == "time" {
			continue
		}
		switch vv := v.(type) {
		case float64:
			values[name] = vv
		case string:
			if f, err := utils.ParseDecimal(vv); err == nil {
				values[name] = f
			}
		}
	}

	return models.SensorRecord{Time: t, Values: values}, nil
}
