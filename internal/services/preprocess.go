package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/agrostack/cosecha/internal/features"
	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/stream"
	"github.com/agrostack/cosecha/internal/utils"
)

// Publisher sends one JSON payload to a broker topic.
type Publisher interface {
	PublishJSON(ctx context.Context, topic string, v any) error
}

// FeatureSink persists each flushed feature row durably.
type FeatureSink interface {
	Append(row models.FeatureRow) error
}

// FeatureState shares the newest feature vector with the other workers.
type FeatureState interface {
	SetLatestFeatures(ctx context.Context, msg models.FeatureMessage) error
}

// PreprocessService turns the raw sensor stream into fixed-interval feature
// rows: records buffer per window, each closed window is aggregated, appended
// to the feature log, and published. Sink and state may be nil.
type PreprocessService struct {
	logger    *slog.Logger
	buffer    *stream.StreamBuffer
	extractor *features.Extractor
	sink      FeatureSink
	publisher Publisher
	state     FeatureState
	topic     string
	latencies *utils.LatencyTracker
}

// NewPreprocessService constructs the windowing worker.
func NewPreprocessService(
	logger *slog.Logger,
	buffer *stream.StreamBuffer,
	sink FeatureSink,
	publisher Publisher,
	state FeatureState,
	topic string,
) *PreprocessService {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer == nil {
		buffer = stream.NewStreamBuffer(time.Hour)
	}
	return &PreprocessService{
		logger:    logger,
		buffer:    buffer,
		extractor: features.NewExtractor(),
		sink:      sink,
		publisher: publisher,
		state:     state,
		topic:     topic,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Run consumes raw payloads until ctx is cancelled or the channel closes.
// Records still buffered in the open window are discarded on shutdown: a
// window closes only on evidence of a later one, and a partial flush would
// publish a short row that consumers cannot tell apart from a full one.
func (s *PreprocessService) Run(ctx context.Context, raw <-chan []byte) {
	s.logger.Info("preprocess worker started",
		slog.Duration("interval", s.buffer.Interval()),
		slog.String("topic", s.topic),
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

func (s *PreprocessService) handle(ctx context.Context, payload []byte) {
	rec, err := stream.DecodeRecord(payload)
	if err != nil {
		metrics.ObserveRecord(metrics.OutcomeMalformed)
		s.logger.Warn("dropping malformed record", slog.Any("error", err))
		return
	}
	metrics.ObserveRecord(metrics.OutcomeProcessed)

	windows := s.buffer.Add(rec)
	if len(windows) == 0 {
		return
	}

	start := time.Now()
	for _, w := range windows {
		s.flush(ctx, w)
	}
	duration := time.Since(start)
	metrics.ObserveFlush(duration, len(windows))
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("window flush latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

func (s *PreprocessService) flush(ctx context.Context, w stream.Window) {
	row := s.extractor.Extract(w.Start, w.Records)

	if s.sink != nil {
		if err := s.sink.Append(row); err != nil {
			s.logger.Error("feature log append failed", slog.Any("error", err))
		}
	}

	msg := models.NewFeatureMessage(row)
	if s.publisher != nil {
		if err := s.publisher.PublishJSON(ctx, s.topic, msg); err != nil {
			metrics.ObservePublishError(s.topic)
			s.logger.Error("feature publish failed", slog.Any("error", err))
		}
	}
	if s.state != nil {
		if err := s.state.SetLatestFeatures(ctx, msg); err != nil {
			s.logger.Warn("feature state update failed", slog.Any("error", err))
		}
	}

	s.logger.Info("window flushed",
		slog.Time("window_start", w.Start),
		slog.Int("records", len(w.Records)),
		slog.Int("columns", len(row.Values)),
	)
}
