package anomaly

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// FeatureColumns are the climate signals the sentinel scores, in training
// order. They mirror the variables the raw stream can realistically disturb.
var FeatureColumns = []string{
	"Tair", "Rhair", "HumDef", "AssimLight", "Tot_PAR",
	"EnScr", "BlackScr", "VentLee", "Ventwind", "CO2air",
}

// reportedColumns is the subset echoed in a published anomaly.
var reportedColumns = []string{"Tair", "Rhair", "CO2air", "AssimLight"}

// Config sizes and seeds the sentinel model.
type Config struct {
	TrainingCSV string
	Trees       int
	SampleSize  int
	Threshold   float64
	Seed        int64
}

// Detector scores live records against an isolation forest fitted once on
// historical climate data.
type Detector struct {
	scaler    *StandardScaler
	forest    *Forest
	threshold float64
	logger    *slog.Logger
}

// NewDetector loads the training CSV, fits the scaler, and grows the forest.
// A training set that cannot be loaded is fatal: the sentinel must not run
// with an unfitted model.
func NewDetector(cfg Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}

	rows, err := LoadTrainingRows(cfg.TrainingCSV, logger)
	if err != nil {
		return nil, err
	}

	scaler := FitScaler(rows)
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = scaler.Transform(row)
	}

	forest := NewForest(cfg.Trees, cfg.SampleSize, cfg.Seed)
	forest.Train(scaled)

	logger.Info("sentinel model fitted",
		"training_rows", len(rows),
		"trees", cfg.Trees,
		"threshold", cfg.Threshold,
	)
	return &Detector{
		scaler:    scaler,
		forest:    forest,
		threshold: cfg.Threshold,
		logger:    logger,
	}, nil
}

// Evaluate scores one record. A record missing any scored signal is reported
// as malformed and skipped; a score at or above the threshold yields the
// anomaly to publish; anything else returns nil.
func (d *Detector) Evaluate(rec models.SensorRecord) (*models.Anomaly, error) {
	x := make([]float64, len(FeatureColumns))
	var missing []string
	for i, col := range FeatureColumns {
		v, ok := rec.Values[col]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			missing = append(missing, col)
			continue
		}
		x[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("record at %s missing features %v: %w",
			rec.Time.Format(time.RFC3339), missing, utils.ErrMalformedInput)
	}

	score := d.forest.Score(d.scaler.Transform(x))
	if score < d.threshold {
		d.logger.Debug("record scored normal", "score", score, "time", rec.Time)
		return nil, nil
	}

	detected := make(map[string]float64, len(reportedColumns))
	for _, col := range reportedColumns {
		detected[col] = rec.Values[col]
	}
	return &models.Anomaly{
		Timestamp:      rec.Time.UTC().Format(time.RFC3339),
		Score:          score,
		DetectedValues: detected,
		Source:         models.AnomalySource,
	}, nil
}

// Threshold reports the configured anomaly cut-off.
func (d *Detector) Threshold() float64 { return d.threshold }
