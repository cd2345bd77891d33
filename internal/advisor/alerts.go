package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// fallbackAlertMessage ships when the language model cannot be reached.
const fallbackAlertMessage = "🚨 ANOMALÍA CRÍTICA - Intervención necesaria"

// Publisher sends advisory JSON to a broker topic.
type Publisher interface {
	PublishJSON(ctx context.Context, topic string, v any) error
}

// Deduper records processed event ids so restarts do not replay alerts.
type Deduper interface {
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// AlertAgent turns flagged anomalies into operator-facing emergency alerts.
// Severity comes from deterministic agronomy rules; the message line comes
// from a small language model with a canned fallback.
type AlertAgent struct {
	rules     Rules
	generator Generator
	publisher Publisher
	dedup     Deduper
	topic     string
	opts      GenerateOptions
	logger    *slog.Logger
	now       func() time.Time
}

// AlertAgentConfig wires an AlertAgent. Deduper may be nil to process every
// payload.
type AlertAgentConfig struct {
	Rules     Rules
	Generator Generator
	Publisher Publisher
	Deduper   Deduper
	Topic     string
	Model     string
	Timeout   time.Duration
}

// NewAlertAgent constructs the agent with the alert model's sampling options.
func NewAlertAgent(cfg AlertAgentConfig, logger *slog.Logger) *AlertAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertAgent{
		rules:     cfg.Rules,
		generator: cfg.Generator,
		publisher: cfg.Publisher,
		dedup:     cfg.Deduper,
		topic:     cfg.Topic,
		opts: GenerateOptions{
			Model:       cfg.Model,
			Temperature: 0.7,
			MaxTokens:   100,
			Timeout:     cfg.Timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Run consumes anomaly payloads until ctx is cancelled or the channel closes.
func (a *AlertAgent) Run(ctx context.Context, messages <-chan []byte) {
	a.logger.Info("alert agent started", "topic", a.topic, "model", a.opts.Model)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-messages:
			if !ok {
				return
			}
			a.handle(ctx, payload)
		}
	}
}

func (a *AlertAgent) handle(ctx context.Context, payload []byte) {
	scrubbed := utils.ScrubNonFiniteJSON(payload)
	var anomaly models.Anomaly
	if err := json.Unmarshal(scrubbed, &anomaly); err != nil {
		a.logger.Warn("dropping malformed anomaly payload", "error", err)
		return
	}

	if a.dedup != nil {
		id := anomalyID(anomaly)
		first, err := a.dedup.MarkProcessed(ctx, id)
		if err != nil {
			a.logger.Warn("dedup check failed, processing anyway", "error", err)
		} else if !first {
			a.logger.Debug("skipping already-processed anomaly", "id", id)
			return
		}
	}

	alert := a.buildAlert(ctx, anomaly, scrubbed)
	if err := a.publisher.PublishJSON(ctx, a.topic, alert); err != nil {
		metrics.ObservePublishError(a.topic)
		a.logger.Error("publish alert failed", "error", err)
		return
	}
	metrics.ObserveAlert(string(alert.Severity))
	a.logger.Info("alert published",
		"severity", alert.Severity,
		"message", truncateRunes(alert.Message, 50),
	)
}

func (a *AlertAgent) buildAlert(ctx context.Context, anomaly models.Anomaly, raw []byte) models.Alert {
	message, err := a.generator.Generate(ctx, a.opts, alertPrompt(anomaly))
	if err != nil || message == "" {
		a.logger.Warn("language model unavailable, using canned alert", "error", err)
		message = fallbackAlertMessage
	}
	return models.Alert{
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Severity:  a.rules.SeverityFor(anomaly.DetectedValues),
		Message:   message,
		RawData:   json.RawMessage(raw),
		Agent:     models.AgentAnomalyAlert,
	}
}

func anomalyID(a models.Anomaly) string {
	return fmt.Sprintf("anomaly:%s-%s", a.Timestamp, promptValue(a.DetectedValues, "Tair"))
}

func alertPrompt(a models.Anomaly) string {
	var b strings.Builder
	b.WriteString("Eres un experto en agricultura de invernaderos de tomate. Se detectó una ANOMALÍA crítica.\n\n")
	b.WriteString("Datos del sensor:\n")
	fmt.Fprintf(&b, "- Temperatura: %s°C\n", promptValue(a.DetectedValues, "Tair"))
	fmt.Fprintf(&b, "- Humedad: %s%%\n", promptValue(a.DetectedValues, "Rhair"))
	fmt.Fprintf(&b, "- CO2: %s ppm\n", promptValue(a.DetectedValues, "CO2air"))
	fmt.Fprintf(&b, "- Luz: %s\n", promptValue(a.DetectedValues, "AssimLight"))
	fmt.Fprintf(&b, "- Tiempo: %s\n\n", a.Timestamp)
	b.WriteString("Genera UNA alerta CONCISA y CRÍTICA (máximo 80 caracteres) que indique:\n")
	b.WriteString("1. El problema específico\n")
	b.WriteString("2. La acción inmediata requerida\n\n")
	b.WriteString("Usa emojis para urgencia. Formato: \"🚨 [PROBLEMA] - [ACCIÓN]\"\n")
	return b.String()
}

func promptValue(values map[string]float64, name string) string {
	v, ok := values[name]
	if !ok {
		return "N/A"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
