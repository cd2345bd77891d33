package models

// ModelName tags every published estimate with the estimator revision.
const ModelName = "nadaraya_watson_v3"

// HarvestStatus buckets a days-to-harvest estimate for operators.
type HarvestStatus string

const (
	StatusCritical HarvestStatus = "CRITICAL"
	StatusImminent HarvestStatus = "IMMINENT"
	StatusNormal   HarvestStatus = "NORMAL"
	StatusExtended HarvestStatus = "EXTENDED"
)

// Display colors paired with each status on dashboards.
const (
	ColorCritical = "red"
	ColorImminent = "orange"
	ColorNormal   = "green"
	ColorExtended = "yellow"
)

// ModelData is one twelve-hour observation for the estimator: renamed mean
// columns plus replay metadata when the source is a recorded harvest cycle.
// HarvestNumber and DaysToHarvestReal are kept untyped so numeric and string
// values both pass through to the published estimate unchanged.
type ModelData struct {
	Values            map[string]float64
	HarvestNumber     any
	DaysToHarvestReal any
	Timestamp         string
}

// Prediction is the wire form of one days-to-harvest estimate. Nil fields
// marshal as null, matching consumers that expect the keys to always exist.
type Prediction struct {
	Timestamp         string        `json:"timestamp"`
	HarvestNumber     any           `json:"harvest_number"`
	DaysToHarvestReal any           `json:"days_to_harvest_real"`
	PredictedDays     float64       `json:"tiempo_final_dias_pred"`
	Status            HarvestStatus `json:"status"`
	Color             string        `json:"color"`
	Model             string        `json:"model"`
}
