package predict

import (
	"encoding/json"
	"fmt"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// DecodeModelData parses one model-data payload. Numeric fields become the
// value map the lag builder reads; harvest_number (or its legacy alias
// cosecha) and tiempo_final are carried through untouched for the published
// estimate.
func DecodeModelData(payload []byte) (models.ModelData, error) {
	var raw map[string]any
	if err := json.Unmarshal(utils.ScrubNonFiniteJSON(payload), &raw); err != nil {
		return models.ModelData{}, fmt.Errorf("decode model data: %v: %w", err, utils.ErrMalformedInput)
	}

	md := models.ModelData{Values: make(map[string]float64, len(raw))}
	for name, v := range raw {
		switch vv := v.(type) {
		case float64:
			md.Values[name] = vv
		case string:
			if f, err := utils.ParseDecimal(vv); err == nil {
				md.Values[name] = f
			}
		}
	}

	if v, ok := raw["harvest_number"]; ok {
		md.HarvestNumber = v
	} else if v, ok := raw["cosecha"]; ok {
		md.HarvestNumber = v
	}
	if v, ok := raw["tiempo_final"]; ok {
		md.DaysToHarvestReal = v
	}
	if s, ok := raw["timestamp"].(string); ok {
		md.Timestamp = s
	}
	return md, nil
}
