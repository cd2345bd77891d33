package models

import "encoding/json"

// AnomalySource identifies the detector in published anomaly messages.
const AnomalySource = "iforest_model"

// Agent identifiers stamped on advisory messages.
const (
	AgentAnomalyAlert          = "anomaly_alert"
	AgentPredictiveRecommender = "predictive_recommendations"
	AgentPredictiveIntegration = "predictive_integration"
)

// AlertSeverity ranks greenhouse alerts.
type AlertSeverity string

const (
	AlertCritical AlertSeverity = "CRITICAL"
	AlertHigh     AlertSeverity = "HIGH"
	AlertMedium   AlertSeverity = "MEDIUM"
	AlertLow      AlertSeverity = "LOW"
)

// Anomaly is one flagged observation from the isolation forest detector.
type Anomaly struct {
	Timestamp      string             `json:"timestamp"`
	Score          float64            `json:"anomaly_score"`
	DetectedValues map[string]float64 `json:"detected_values"`
	Source         string             `json:"source"`
}

// Alert is an operator-facing emergency message derived from an anomaly.
// RawData echoes the triggering payload for downstream context.
type Alert struct {
	Timestamp string          `json:"timestamp"`
	Severity  AlertSeverity   `json:"severity"`
	Message   string          `json:"message"`
	RawData   json.RawMessage `json:"raw_data"`
	Agent     string          `json:"agent"`
}

// RiskAssessment grades current growing conditions.
type RiskAssessment struct {
	Level   AlertSeverity `json:"level"`
	Factors []string      `json:"factors"`
	Score   int           `json:"score"`
}

// Analysis is the structured outcome of one advisory pass.
type Analysis struct {
	Summary         string         `json:"summary"`
	Prediction      []string       `json:"prediction"`
	Recommendation  string         `json:"recommendation"`
	PriorityActions []string       `json:"priority_actions"`
	RiskAssessment  RiskAssessment `json:"risk_assessment"`
}

// Recommendation is the periodic strategic advisory message.
type Recommendation struct {
	Timestamp  string    `json:"timestamp"`
	Analysis   *Analysis `json:"analysis"`
	Agent      string    `json:"agent"`
	Confidence float64   `json:"confidence"`
}

// PredictionReview wraps an external estimate the advisor has cross-checked.
type PredictionReview struct {
	ExternalPrediction json.RawMessage `json:"external_prediction"`
	InternalAnalysis   *Analysis       `json:"internal_analysis"`
	Timestamp          string          `json:"timestamp"`
	Agent              string          `json:"agent"`
}
