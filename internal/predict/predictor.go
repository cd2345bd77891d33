package predict

import (
	"log/slog"
	"time"

	"github.com/agrostack/cosecha/internal/corpus"
	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// Predictor turns one model-data observation into a published estimate:
// complete the query vector, run the kernel regression, bucket the result.
type Predictor struct {
	regressor *KernelRegressor
	builder   *LagFeatureBuilder
	logger    *slog.Logger
	now       func() time.Time
}

// NewPredictor builds the full estimation chain over a loaded corpus.
func NewPredictor(c *corpus.Corpus, bandwidth float64, logger *slog.Logger) (*Predictor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		return nil, utils.ErrCorpusNotReady
	}
	regressor, err := NewKernelRegressor(c, bandwidth, logger)
	if err != nil {
		return nil, err
	}
	return &Predictor{
		regressor: regressor,
		builder:   NewLagFeatureBuilder(c, logger),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Predict estimates days to harvest for one observation. The status is
// derived from the raw estimate; only the wire value is rounded.
func (p *Predictor) Predict(data models.ModelData) models.Prediction {
	x := p.builder.Build(data.Values)
	days := p.regressor.Estimate(x)
	status, color := Classify(days)

	pred := models.Prediction{
		Timestamp:         p.now().Format(time.RFC3339),
		HarvestNumber:     data.HarvestNumber,
		DaysToHarvestReal: data.DaysToHarvestReal,
		PredictedDays:     Round1(days),
		Status:            status,
		Color:             color,
		Model:             models.ModelName,
	}
	p.logger.Info("harvest estimate",
		"harvest_number", data.HarvestNumber,
		"days_pred", pred.PredictedDays,
		"days_real", data.DaysToHarvestReal,
		"status", status,
	)
	return pred
}
