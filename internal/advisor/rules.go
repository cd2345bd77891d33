package advisor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agrostack/cosecha/internal/models"
)

// Band is an inclusive low/high range; readings outside it trip the rule the
// band belongs to.
type Band struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

func (b Band) outside(v float64) bool {
	return v < b.Low || v > b.High
}

// Rules collects the agronomy thresholds driving severity grading, risk
// assessment and insight lines. The shipped defaults target greenhouse
// tomatoes; a YAML rulepack overrides them per deployment.
type Rules struct {
	Crop    string `yaml:"crop"`
	Optimal struct {
		Temperature Band `yaml:"temperature"`
		Humidity    Band `yaml:"humidity"`
		CO2         Band `yaml:"co2"`
		Light       Band `yaml:"light"`
	} `yaml:"optimal"`
	Severity struct {
		TemperatureCritical Band `yaml:"temperatureCritical"`
		HumidityHigh        Band `yaml:"humidityHigh"`
		CO2Medium           Band `yaml:"co2Medium"`
	} `yaml:"severity"`
	Risk struct {
		TemperatureExtreme    Band `yaml:"temperatureExtreme"`
		TemperatureSuboptimal Band `yaml:"temperatureSuboptimal"`
		AnomalyHigh           int  `yaml:"anomalyHigh"`
		AnomalyMedium         int  `yaml:"anomalyMedium"`
	} `yaml:"risk"`
	Insights struct {
		HeatStress          float64 `yaml:"heatStress"`
		ColdStress          float64 `yaml:"coldStress"`
		HumidityFungal      float64 `yaml:"humidityFungal"`
		HumidityWaterStress float64 `yaml:"humidityWaterStress"`
	} `yaml:"insights"`
	PriorityKeywords []string `yaml:"priorityKeywords"`
}

// DefaultRules returns the built-in tomato thresholds.
func DefaultRules() Rules {
	var r Rules
	r.Crop = "tomate"
	r.Optimal.Temperature = Band{Low: 18, High: 28}
	r.Optimal.Humidity = Band{Low: 60, High: 80}
	r.Optimal.CO2 = Band{Low: 400, High: 800}
	r.Optimal.Light = Band{Low: 100, High: 300}
	r.Severity.TemperatureCritical = Band{Low: 10, High: 35}
	r.Severity.HumidityHigh = Band{Low: 40, High: 90}
	r.Severity.CO2Medium = Band{Low: 300, High: 1000}
	r.Risk.TemperatureExtreme = Band{Low: 15, High: 30}
	r.Risk.TemperatureSuboptimal = Band{Low: 18, High: 28}
	r.Risk.AnomalyHigh = 3
	r.Risk.AnomalyMedium = 1
	r.Insights.HeatStress = 28
	r.Insights.ColdStress = 18
	r.Insights.HumidityFungal = 85
	r.Insights.HumidityWaterStress = 50
	r.PriorityKeywords = []string{
		"inmediato", "urgente", "crítico", "ajustar", "reducir", "aumentar",
		"activar", "desactivar", "revisar", "monitorear",
	}
	return r
}

// LoadRules reads a YAML rulepack over the defaults. A missing file keeps the
// defaults; an unreadable or malformed file is an error so a broken rulepack
// does not silently revert thresholds.
func LoadRules(path string, logger *slog.Logger) (Rules, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("rulepack not found, using built-in thresholds", "path", path)
			return rules, nil
		}
		return rules, fmt.Errorf("read rulepack: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rulepack %s: %w", path, err)
	}
	logger.Info("rulepack loaded", "path", path, "crop", rules.Crop)
	return rules, nil
}

// SeverityFor grades an anomaly by its detected values. Absent readings count
// as zero.
func (r Rules) SeverityFor(values map[string]float64) models.AlertSeverity {
	switch {
	case r.Severity.TemperatureCritical.outside(values["Tair"]):
		return models.AlertCritical
	case r.Severity.HumidityHigh.outside(values["Rhair"]):
		return models.AlertHigh
	case r.Severity.CO2Medium.outside(values["CO2air"]):
		return models.AlertMedium
	default:
		return models.AlertLow
	}
}

// InsightLines derives short growth-impact observations from the latest
// windowed features. Absent or undefined statistics are skipped.
func (r Rules) InsightLines(features map[string]float64) []string {
	var insights []string
	if temp, ok := finiteFeature(features, "Tair__mean"); ok {
		if temp > r.Insights.HeatStress {
			insights = append(insights, "Riesgo de estrés térmico - puede reducir cuajado de frutos")
		} else if temp < r.Insights.ColdStress {
			insights = append(insights, "Temperatura subóptima - crecimiento lento esperado")
		}
	}
	if humidity, ok := finiteFeature(features, "Rhair__mean"); ok {
		if humidity > r.Insights.HumidityFungal {
			insights = append(insights, "Alta humedad - riesgo de enfermedades fúngicas")
		} else if humidity < r.Insights.HumidityWaterStress {
			insights = append(insights, "Baja humedad - estrés hídrico y mala polinización")
		}
	}
	return insights
}

// AssessRisk grades current conditions from the latest features and the
// recent anomaly count.
func (r Rules) AssessRisk(features map[string]float64, anomalyCount int) models.RiskAssessment {
	level := models.AlertLow
	var factors []string

	if temp, ok := finiteFeature(features, "Tair__mean"); ok {
		if r.Risk.TemperatureExtreme.outside(temp) {
			level = models.AlertHigh
			factors = append(factors, "Temperatura extrema")
		} else if r.Risk.TemperatureSuboptimal.outside(temp) {
			if level == models.AlertLow {
				level = models.AlertMedium
			}
			factors = append(factors, "Temperatura subóptima")
		}
	}

	if anomalyCount > r.Risk.AnomalyHigh {
		level = models.AlertHigh
		factors = append(factors, "Múltiples anomalías detectadas")
	} else if anomalyCount > r.Risk.AnomalyMedium {
		if level == models.AlertLow {
			level = models.AlertMedium
		}
		factors = append(factors, "Anomalías ocasionales")
	}

	return models.RiskAssessment{Level: level, Factors: factors, Score: len(factors) * 10}
}

// Confidence scores how much to trust the current analysis: the share of the
// three core means that are present and positive, cut by 20% under anomaly
// pressure, clamped to 50..95.
func (r Rules) Confidence(features map[string]float64, anomalyCount int) float64 {
	required := []string{"Tair__mean", "Rhair__mean", "CO2air__mean"}
	available := 0
	for _, name := range required {
		if v, ok := finiteFeature(features, name); ok && v > 0 {
			available++
		}
	}
	confidence := float64(available) / float64(len(required)) * 100
	if anomalyCount > 2 {
		confidence *= 0.8
	}
	return math.Min(95, math.Max(50, confidence))
}

// PriorityActions picks up to three sentences of the narrative that carry an
// action keyword.
func (r Rules) PriorityActions(text string) []string {
	var actions []string
	for _, sentence := range strings.Split(text, ".") {
		lower := strings.ToLower(sentence)
		for _, keyword := range r.PriorityKeywords {
			if strings.Contains(lower, keyword) {
				actions = append(actions, strings.TrimSpace(sentence))
				break
			}
		}
		if len(actions) == 3 {
			break
		}
	}
	return actions
}

func finiteFeature(features map[string]float64, name string) (float64, bool) {
	v, ok := features[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
