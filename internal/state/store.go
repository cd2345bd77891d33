package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agrostack/cosecha/internal/cache"
	"github.com/agrostack/cosecha/internal/models"
)

// Keys shared between workers. The preprocessor and predictor publish their
// latest output here so the advisor reads broker-independent snapshots
// instead of tailing each other's files.
const (
	keyLatestFeatures   = "cosecha:features:latest"
	keyLatestPrediction = "cosecha:prediction:latest"
	keyRecentAnomalies  = "cosecha:anomalies:recent"
	keyProcessedPrefix  = "cosecha:processed:"
)

// Config bounds retention of the shared snapshots.
type Config struct {
	FeatureTTL    time.Duration
	PredictionTTL time.Duration
	ProcessedTTL  time.Duration
	AnomalyRing   int
}

// Store provides typed access to the cross-worker state.
type Store struct {
	provider cache.Provider
	cfg      Config
}

// New wraps a cache provider with the pipeline's state schema.
func New(provider cache.Provider, cfg Config) *Store {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if cfg.AnomalyRing <= 0 {
		cfg.AnomalyRing = 50
	}
	return &Store{provider: provider, cfg: cfg}
}

// SetLatestFeatures stores the newest feature message.
func (s *Store) SetLatestFeatures(ctx context.Context, msg models.FeatureMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	return s.provider.Set(ctx, keyLatestFeatures, payload, s.cfg.FeatureTTL)
}

// LatestFeatures returns the newest feature message, or cache.ErrCacheMiss
// when none has been stored yet.
func (s *Store) LatestFeatures(ctx context.Context) (models.FeatureMessage, error) {
	var msg models.FeatureMessage
	payload, err := s.provider.Get(ctx, keyLatestFeatures)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("decode features: %w", err)
	}
	return msg, nil
}

// SetLatestPrediction stores the newest harvest estimate.
func (s *Store) SetLatestPrediction(ctx context.Context, p models.Prediction) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	return s.provider.Set(ctx, keyLatestPrediction, payload, s.cfg.PredictionTTL)
}

// LatestPrediction returns the newest harvest estimate, or cache.ErrCacheMiss.
func (s *Store) LatestPrediction(ctx context.Context) (models.Prediction, error) {
	var p models.Prediction
	payload, err := s.provider.Get(ctx, keyLatestPrediction)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("decode prediction: %w", err)
	}
	return p, nil
}

// PushAnomaly appends a flagged observation to the bounded recent ring.
func (s *Store) PushAnomaly(ctx context.Context, a models.Anomaly) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode anomaly: %w", err)
	}
	return s.provider.PushCapped(ctx, keyRecentAnomalies, payload, s.cfg.AnomalyRing)
}

// RecentAnomalies returns up to n recent anomalies, newest first. Entries
// that fail to decode are skipped rather than aborting the read.
func (s *Store) RecentAnomalies(ctx context.Context, n int) ([]models.Anomaly, error) {
	if n <= 0 || n > s.cfg.AnomalyRing {
		n = s.cfg.AnomalyRing
	}
	raw, err := s.provider.Range(ctx, keyRecentAnomalies, n)
	if err != nil {
		return nil, err
	}
	out := make([]models.Anomaly, 0, len(raw))
	for _, payload := range raw {
		var a models.Anomaly
		if err := json.Unmarshal(payload, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MarkProcessed records id and reports whether this call was the first to do
// so, giving at-most-once handling across advisor restarts.
func (s *Store) MarkProcessed(ctx context.Context, id string) (bool, error) {
	return s.provider.SetNX(ctx, keyProcessedPrefix+id, []byte("1"), s.cfg.ProcessedTTL)
}

// Close releases the underlying provider.
func (s *Store) Close() error {
	return s.provider.Close()
}
