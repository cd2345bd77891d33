package services

import (
	"context"

	"github.com/agrostack/cosecha/internal/models"
)

type capturePublisher struct {
	topics   []string
	messages []any
}

func (p *capturePublisher) PublishJSON(ctx context.Context, topic string, v any) error {
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, v)
	return nil
}

type captureFeatureSink struct {
	rows []models.FeatureRow
	err  error
}

func (s *captureFeatureSink) Append(row models.FeatureRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

type captureAlertSink struct {
	records []models.SensorRecord
	scores  []float64
}

func (s *captureAlertSink) Append(rec models.SensorRecord, score float64) error {
	s.records = append(s.records, rec)
	s.scores = append(s.scores, score)
	return nil
}

// stubState satisfies every per-worker state interface.
type stubState struct {
	features    []models.FeatureMessage
	predictions []models.Prediction
	anomalies   []models.Anomaly
}

func (s *stubState) SetLatestFeatures(ctx context.Context, msg models.FeatureMessage) error {
	s.features = append(s.features, msg)
	return nil
}

func (s *stubState) SetLatestPrediction(ctx context.Context, p models.Prediction) error {
	s.predictions = append(s.predictions, p)
	return nil
}

func (s *stubState) PushAnomaly(ctx context.Context, a models.Anomaly) error {
	s.anomalies = append(s.anomalies, a)
	return nil
}
