package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agrostack/cosecha/internal/cache"
	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// fallbackAnalysis ships when the analysis model cannot be reached.
const fallbackAnalysis = "Análisis no disponible temporalmente"

// Snapshot sources the advisor's view of current growing conditions.
type Snapshot interface {
	LatestFeatures(ctx context.Context) (models.FeatureMessage, error)
	RecentAnomalies(ctx context.Context, n int) ([]models.Anomaly, error)
}

// RecommendAgent publishes strategic growing advice: a periodic analysis of
// the latest windowed features plus a review of every harvest estimate that
// arrives. The narrative comes from a larger language model; insights, risk
// and confidence are computed deterministically from the rulepack.
type RecommendAgent struct {
	rules     Rules
	generator Generator
	publisher Publisher
	snapshot  Snapshot
	dedup     Deduper
	topic     string
	opts      GenerateOptions
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// RecommendAgentConfig wires a RecommendAgent. Deduper may be nil to review
// every estimate.
type RecommendAgentConfig struct {
	Rules     Rules
	Generator Generator
	Publisher Publisher
	Snapshot  Snapshot
	Deduper   Deduper
	Topic     string
	Model     string
	Timeout   time.Duration
	Interval  time.Duration
}

// NewRecommendAgent constructs the agent with the analysis model's sampling
// options.
func NewRecommendAgent(cfg RecommendAgentConfig, logger *slog.Logger) *RecommendAgent {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RecommendAgent{
		rules:     cfg.Rules,
		generator: cfg.Generator,
		publisher: cfg.Publisher,
		snapshot:  cfg.Snapshot,
		dedup:     cfg.Deduper,
		topic:     cfg.Topic,
		opts: GenerateOptions{
			Model:       cfg.Model,
			Temperature: 0.8,
			MaxTokens:   500,
			TopP:        0.9,
			Timeout:     cfg.Timeout,
		},
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run serves the periodic analysis tick and incoming prediction payloads
// until ctx is cancelled or the channel closes. The first analysis runs
// immediately.
func (a *RecommendAgent) Run(ctx context.Context, predictions <-chan []byte) {
	a.logger.Info("recommendation agent started",
		"topic", a.topic,
		"model", a.opts.Model,
		"interval", a.interval,
	)
	a.publishPeriodic(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.publishPeriodic(ctx)
		case payload, ok := <-predictions:
			if !ok {
				return
			}
			a.handlePrediction(ctx, payload)
		}
	}
}

func (a *RecommendAgent) publishPeriodic(ctx context.Context) {
	analysis, confidence, ok := a.analyze(ctx)
	if !ok {
		return
	}
	rec := models.Recommendation{
		Timestamp:  a.now().UTC().Format(time.RFC3339),
		Analysis:   analysis,
		Agent:      models.AgentPredictiveRecommender,
		Confidence: confidence,
	}
	if err := a.publisher.PublishJSON(ctx, a.topic, rec); err != nil {
		metrics.ObservePublishError(a.topic)
		a.logger.Error("publish recommendation failed", "error", err)
		return
	}
	metrics.ObserveRecommendation()
	a.logger.Info("recommendation published",
		"confidence", confidence,
		"risk", analysis.RiskAssessment.Level,
		"summary", truncateRunes(analysis.Summary, 50),
	)
}

func (a *RecommendAgent) handlePrediction(ctx context.Context, payload []byte) {
	scrubbed := utils.ScrubNonFiniteJSON(payload)
	var pred struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(scrubbed, &pred); err != nil {
		a.logger.Warn("dropping malformed prediction payload", "error", err)
		return
	}

	if a.dedup != nil && pred.Timestamp != "" {
		first, err := a.dedup.MarkProcessed(ctx, "prediction:"+pred.Timestamp)
		if err != nil {
			a.logger.Warn("dedup check failed, processing anyway", "error", err)
		} else if !first {
			a.logger.Debug("skipping already-reviewed estimate", "timestamp", pred.Timestamp)
			return
		}
	}

	analysis, _, _ := a.analyze(ctx)
	review := models.PredictionReview{
		ExternalPrediction: json.RawMessage(scrubbed),
		InternalAnalysis:   analysis,
		Timestamp:          a.now().UTC().Format(time.RFC3339),
		Agent:              models.AgentPredictiveIntegration,
	}
	if err := a.publisher.PublishJSON(ctx, a.topic, review); err != nil {
		metrics.ObservePublishError(a.topic)
		a.logger.Error("publish prediction review failed", "error", err)
		return
	}
	metrics.ObserveRecommendation()
	a.logger.Info("prediction review published", "timestamp", pred.Timestamp)
}

// analyze assembles one advisory pass. It reports false when no conditions
// have been observed yet.
func (a *RecommendAgent) analyze(ctx context.Context) (*models.Analysis, float64, bool) {
	features, anomalies := a.currentConditions(ctx)
	if features == nil && len(anomalies) == 0 {
		a.logger.Debug("no conditions to analyse yet")
		return nil, 0, false
	}

	summary, err := a.generator.Generate(ctx, a.opts, analysisPrompt(a.rules, features, len(anomalies)))
	if err != nil || summary == "" {
		a.logger.Warn("language model unavailable, using canned analysis", "error", err)
		summary = fallbackAnalysis
	}

	analysis := &models.Analysis{
		Summary:         summary,
		Prediction:      a.rules.InsightLines(features),
		Recommendation:  summary,
		PriorityActions: a.rules.PriorityActions(summary),
		RiskAssessment:  a.rules.AssessRisk(features, len(anomalies)),
	}
	return analysis, a.rules.Confidence(features, len(anomalies)), true
}

func (a *RecommendAgent) currentConditions(ctx context.Context) (map[string]float64, []models.Anomaly) {
	var features map[string]float64
	msg, err := a.snapshot.LatestFeatures(ctx)
	switch {
	case err == nil:
		features = make(map[string]float64, len(msg.Features))
		for name, v := range msg.Features {
			features[name] = float64(v)
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		a.logger.Warn("reading latest features failed", "error", err)
	}

	anomalies, err := a.snapshot.RecentAnomalies(ctx, 5)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		a.logger.Warn("reading recent anomalies failed", "error", err)
	}
	return features, anomalies
}

func analysisPrompt(rules Rules, features map[string]float64, anomalyCount int) string {
	var b strings.Builder
	b.WriteString("Eres un experto consultor en agricultura de precisión para cultivo de tomates en invernadero.\n\n")
	b.WriteString("DATOS ACTUALES DEL INVERNADERO:\n")
	fmt.Fprintf(&b, "- Temperatura promedio: %.1f°C\n", featureOrZero(features, "Tair__mean"))
	fmt.Fprintf(&b, "- Humedad promedio: %.1f%%\n", featureOrZero(features, "Rhair__mean"))
	fmt.Fprintf(&b, "- CO2 promedio: %.0f ppm\n", featureOrZero(features, "CO2air__mean"))
	fmt.Fprintf(&b, "- Luz PAR promedio: %.0f\n\n", featureOrZero(features, "AssimLight__mean"))

	b.WriteString("RANGOS ÓPTIMOS PARA TOMATE:\n")
	fmt.Fprintf(&b, "- Temperatura: %.0f-%.0f°C\n", rules.Optimal.Temperature.Low, rules.Optimal.Temperature.High)
	fmt.Fprintf(&b, "- Humedad: %.0f-%.0f%%\n", rules.Optimal.Humidity.Low, rules.Optimal.Humidity.High)
	fmt.Fprintf(&b, "- CO2: %.0f-%.0f ppm\n", rules.Optimal.CO2.Low, rules.Optimal.CO2.High)
	fmt.Fprintf(&b, "- Luz PAR: %.0f-%.0f\n\n", rules.Optimal.Light.Low, rules.Optimal.Light.High)

	fmt.Fprintf(&b, "ANOMALÍAS RECIENTES: %d detectadas en las últimas mediciones\n\n", anomalyCount)

	b.WriteString("SOLICITUD:\n")
	b.WriteString("Genera un análisis estratégico de 200-300 palabras que incluya:\n\n")
	b.WriteString("1. DIAGNÓSTICO: Estado actual del microclima vs condiciones óptimas\n")
	b.WriteString("2. PRONÓSTICO: Impacto esperado en el crecimiento y rendimiento de tomates\n")
	b.WriteString("3. RECOMENDACIONES ESPECÍFICAS: ajustes inmediatos (próximas 24h), estrategias a mediano plazo (1-2 semanas) y optimizaciones estacionales\n")
	b.WriteString("4. ALERTAS PREVENTIVAS: Riesgos a monitorear\n\n")
	b.WriteString("Enfócate en maximizar la productividad y calidad de los tomates. Usa lenguaje técnico pero comprensible para productores agrícolas.\n")
	return b.String()
}

func featureOrZero(features map[string]float64, name string) float64 {
	v, ok := finiteFeature(features, name)
	if !ok {
		return 0
	}
	return v
}
