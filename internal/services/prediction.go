package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/predict"
	"github.com/agrostack/cosecha/internal/utils"
)

// PredictionState shares the newest estimate with the other workers.
type PredictionState interface {
	SetLatestPrediction(ctx context.Context, p models.Prediction) error
}

// PredictionService turns twelve-hour observations into published harvest
// estimates. State may be nil.
type PredictionService struct {
	logger    *slog.Logger
	predictor *predict.Predictor
	publisher Publisher
	state     PredictionState
	topic     string
	latencies *utils.LatencyTracker
}

// NewPredictionService constructs the estimation worker over a ready
// predictor.
func NewPredictionService(
	logger *slog.Logger,
	predictor *predict.Predictor,
	publisher Publisher,
	state PredictionState,
	topic string,
) *PredictionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionService{
		logger:    logger,
		predictor: predictor,
		publisher: publisher,
		state:     state,
		topic:     topic,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Run consumes observation payloads until ctx is cancelled or the channel
// closes.
func (s *PredictionService) Run(ctx context.Context, observations <-chan []byte) {
	s.logger.Info("prediction worker started", slog.String("topic", s.topic))
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-observations:
			if !ok {
				return
			}
			s.handle(ctx, payload)
		}
	}
}

func (s *PredictionService) handle(ctx context.Context, payload []byte) {
	data, err := predict.DecodeModelData(payload)
	if err != nil {
		s.logger.Warn("dropping malformed observation", slog.Any("error", err))
		return
	}

	start := time.Now()
	pred := s.predictor.Predict(data)
	duration := time.Since(start)
	metrics.ObservePrediction(duration, string(pred.Status))
	s.latencies.Observe(duration)

	if s.publisher != nil {
		if err := s.publisher.PublishJSON(ctx, s.topic, pred); err != nil {
			metrics.ObservePublishError(s.topic)
			s.logger.Error("estimate publish failed", slog.Any("error", err))
		}
	}
	if s.state != nil {
		if err := s.state.SetLatestPrediction(ctx, pred); err != nil {
			s.logger.Warn("prediction state update failed", slog.Any("error", err))
		}
	}

	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("estimate latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}
