package services

import (
	"context"
	"log/slog"

	"github.com/agrostack/cosecha/internal/anomaly"
	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/stream"
)

// AlertSink records each flagged observation alongside its raw readings.
type AlertSink interface {
	Append(rec models.SensorRecord, score float64) error
}

// AnomalyState shares flagged observations with the advisory worker.
type AnomalyState interface {
	PushAnomaly(ctx context.Context, a models.Anomaly) error
}

// SentinelService scores the raw stream against the fitted isolation forest
// and publishes every observation at or above the threshold. Sink and state
// may be nil.
type SentinelService struct {
	logger    *slog.Logger
	detector  *anomaly.Detector
	sink      AlertSink
	publisher Publisher
	state     AnomalyState
	topic     string
}

// NewSentinelService constructs the scoring worker over a fitted detector.
func NewSentinelService(
	logger *slog.Logger,
	detector *anomaly.Detector,
	sink AlertSink,
	publisher Publisher,
	state AnomalyState,
	topic string,
) *SentinelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentinelService{
		logger:    logger,
		detector:  detector,
		sink:      sink,
		publisher: publisher,
		state:     state,
		topic:     topic,
	}
}

// Run consumes raw payloads until ctx is cancelled or the channel closes.
func (s *SentinelService) Run(ctx context.Context, raw <-chan []byte) {
	s.logger.Info("sentinel worker started",
		slog.String("topic", s.topic),
		slog.Float64("threshold", s.detector.Threshold()),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-raw:
			if !ok {
				return
			}
			s.handle(ctx, payload)
		}
	}
}

func (s *SentinelService) handle(ctx context.Context, payload []byte) {
	rec, err := stream.DecodeRecord(payload)
	if err != nil {
		metrics.ObserveRecord(metrics.OutcomeMalformed)
		s.logger.Warn("dropping malformed record", slog.Any("error", err))
		return
	}
	metrics.ObserveRecord(metrics.OutcomeProcessed)

	flagged, err := s.detector.Evaluate(rec)
	if err != nil {
		s.logger.Warn("record not scoreable", slog.Any("error", err))
		return
	}
	if flagged == nil {
		return
	}

	metrics.ObserveAnomaly()
	s.logger.Warn("anomaly detected",
		slog.Float64("score", flagged.Score),
		slog.String("time", flagged.Timestamp),
	)

	if s.sink != nil {
		if err := s.sink.Append(rec, flagged.Score); err != nil {
			s.logger.Error("alert log append failed", slog.Any("error", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishJSON(ctx, s.topic, flagged); err != nil {
			metrics.ObservePublishError(s.topic)
			s.logger.Error("anomaly publish failed", slog.Any("error", err))
		}
	}
	if s.state != nil {
		if err := s.state.PushAnomaly(ctx, *flagged); err != nil {
			s.logger.Warn("anomaly state update failed", slog.Any("error", err))
		}
	}
}
