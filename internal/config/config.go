package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings shared by the greenhouse pipeline workers.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Windowing  WindowingConfig  `yaml:"windowing"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Model      ModelConfig      `yaml:"model"`
	Sentinel   SentinelConfig   `yaml:"sentinel"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	State      StateConfig      `yaml:"state"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Sim        SimConfig        `yaml:"sim"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the per-worker admin listeners.
type ServerConfig struct {
	HealthAddress   string        `yaml:"healthAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// MQTTConfig configures broker access for every worker.
type MQTTConfig struct {
	BrokerURL      string        `yaml:"brokerURL"`
	ClientIDPrefix string        `yaml:"clientIDPrefix"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            int           `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keepAlive"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	Topics         TopicsConfig  `yaml:"topics"`
}

// TopicsConfig names the channels linking the pipeline stages.
type TopicsConfig struct {
	Raw             string `yaml:"raw"`
	Features        string `yaml:"features"`
	ModelData       string `yaml:"modelData"`
	Predictions     string `yaml:"predictions"`
	Anomalies       string `yaml:"anomalies"`
	Alerts          string `yaml:"alerts"`
	Recommendations string `yaml:"recommendations"`
}

// WindowingConfig controls the stream aggregation stage.
type WindowingConfig struct {
	Interval    time.Duration `yaml:"interval"`
	FeaturesCSV string        `yaml:"featuresCSV"`
}

// CorpusConfig locates and shapes the historical training data.
type CorpusConfig struct {
	Path        string `yaml:"path"`
	TimeColumn  string `yaml:"timeColumn"`
	GroupColumn string `yaml:"groupColumn"`
	LagPeriods  int    `yaml:"lagPeriods"`
}

// ModelConfig tunes the kernel regression estimator.
type ModelConfig struct {
	Bandwidth float64 `yaml:"bandwidth"`
}

// SentinelConfig tunes the anomaly detector.
type SentinelConfig struct {
	TrainingCSV string  `yaml:"trainingCSV"`
	AlertsCSV   string  `yaml:"alertsCSV"`
	Trees       int     `yaml:"trees"`
	SampleSize  int     `yaml:"sampleSize"`
	Threshold   float64 `yaml:"threshold"`
}

// AdvisorConfig configures the language-model advisory agents.
type AdvisorConfig struct {
	OllamaURL        string        `yaml:"ollamaURL"`
	AlertModel       string        `yaml:"alertModel"`
	AnalysisModel    string        `yaml:"analysisModel"`
	AlertTimeout     time.Duration `yaml:"alertTimeout"`
	AnalysisTimeout  time.Duration `yaml:"analysisTimeout"`
	AnalysisInterval time.Duration `yaml:"analysisInterval"`
	RulesPath        string        `yaml:"rulesPath"`
}

// StateConfig controls the Valkey-backed shared state between workers.
type StateConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	TLS           bool          `yaml:"tls"`
	FeatureTTL    time.Duration `yaml:"featureTTL"`
	PredictionTTL time.Duration `yaml:"predictionTTL"`
	ProcessedTTL  time.Duration `yaml:"processedTTL"`
	AnomalyRing   int           `yaml:"anomalyRing"`
}

// SupervisorConfig describes the worker fleet and its monitoring cadence.
type SupervisorConfig struct {
	MonitorInterval time.Duration  `yaml:"monitorInterval"`
	StartDelay      time.Duration  `yaml:"startDelay"`
	RestartBackoff  time.Duration  `yaml:"restartBackoff"`
	BackoffMax      time.Duration  `yaml:"backoffMax"`
	Workers         []WorkerConfig `yaml:"workers"`
}

// WorkerConfig describes one supervised process.
type WorkerConfig struct {
	Name           string   `yaml:"name"`
	Bin            string   `yaml:"bin"`
	Args           []string `yaml:"args"`
	Enabled        bool     `yaml:"enabled"`
	HealthAddress  string   `yaml:"healthAddress"`
	MetricsAddress string   `yaml:"metricsAddress"`
}

// SimConfig controls the data generators used without real hardware.
type SimConfig struct {
	Mode           string        `yaml:"mode"`
	DatasetPath    string        `yaml:"datasetPath"`
	Interval       time.Duration `yaml:"interval"`
	ReplayInterval time.Duration `yaml:"replayInterval"`
	Cycles         int           `yaml:"cycles"`
	CycleDays      int           `yaml:"cycleDays"`
	AnomalyMin     int           `yaml:"anomalyMin"`
	AnomalyMax     int           `yaml:"anomalyMax"`
	Seed           int64         `yaml:"seed"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("COSECHA_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HealthAddress:   ":50061",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			BrokerURL:      "tcp://localhost:1883",
			ClientIDPrefix: "cosecha",
			QoS:            0,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			Topics: TopicsConfig{
				Raw:             "invernadero/sensores/raw",
				Features:        "invernadero/features_predictivas",
				ModelData:       "invernadero/model/data_12h",
				Predictions:     "invernadero/predicciones",
				Anomalies:       "invernadero/anomalias",
				Alerts:          "invernadero/alertas/emergentes",
				Recommendations: "invernadero/recomendaciones",
			},
		},
		Windowing: WindowingConfig{
			Interval:    time.Hour,
			FeaturesCSV: "features_predictivas.csv",
		},
		Corpus: CorpusConfig{
			TimeColumn:  "__time__",
			GroupColumn: "cosecha",
			LagPeriods:  9,
		},
		Model: ModelConfig{Bandwidth: 2.5},
		Sentinel: SentinelConfig{
			AlertsCSV:  "alertas.csv",
			Trees:      100,
			SampleSize: 256,
			Threshold:  0.6,
		},
		Advisor: AdvisorConfig{
			OllamaURL:        "http://localhost:11434/api/generate",
			AlertModel:       "tinyllama:1.1b",
			AnalysisModel:    "deepseek-r1:8b",
			AlertTimeout:     30 * time.Second,
			AnalysisTimeout:  60 * time.Second,
			AnalysisInterval: 5 * time.Minute,
			RulesPath:        "configs/rules/agronomy.yaml",
		},
		State: StateConfig{
			Enabled:       false,
			DialTimeout:   2 * time.Second,
			ReadTimeout:   500 * time.Millisecond,
			WriteTimeout:  500 * time.Millisecond,
			MaxRetries:    2,
			FeatureTTL:    time.Hour,
			PredictionTTL: time.Hour,
			ProcessedTTL:  2 * time.Hour,
			AnomalyRing:   50,
		},
		Supervisor: SupervisorConfig{
			MonitorInterval: 30 * time.Second,
			StartDelay:      2 * time.Second,
			RestartBackoff:  time.Second,
			BackoffMax:      time.Minute,
			Workers: []WorkerConfig{
				{Name: "preprocessor", Bin: "cosecha-preprocessor", Enabled: true, HealthAddress: ":50071", MetricsAddress: ":2171"},
				{Name: "predictor", Bin: "cosecha-predictor", Enabled: true, HealthAddress: ":50072", MetricsAddress: ":2172"},
				{Name: "sentinel", Bin: "cosecha-sentinel", Enabled: true, HealthAddress: ":50073", MetricsAddress: ":2173"},
				{Name: "advisor", Bin: "cosecha-advisor", Enabled: true, HealthAddress: ":50074", MetricsAddress: ":2174"},
				{Name: "simulator", Bin: "cosecha-simulator", Enabled: false, HealthAddress: ":50075", MetricsAddress: ":2175"},
			},
		},
		Sim: SimConfig{
			Mode:           "synthetic",
			Interval:       500 * time.Millisecond,
			ReplayInterval: 2 * time.Second,
			Cycles:         3,
			CycleDays:      45,
			AnomalyMin:     30,
			AnomalyMax:     100,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COSECHA_HEALTH_ADDRESS"); v != "" {
		cfg.Server.HealthAddress = v
	}
	if v := os.Getenv("COSECHA_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("COSECHA_MQTT_BROKER_URL"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
	if v := os.Getenv("COSECHA_MQTT_CLIENT_ID_PREFIX"); v != "" {
		cfg.MQTT.ClientIDPrefix = v
	}
	if v := os.Getenv("COSECHA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("COSECHA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("COSECHA_MQTT_QOS"); v != "" {
		if q, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.QoS = q
		}
	}
	if v := os.Getenv("COSECHA_WINDOW_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Windowing.Interval = d
		}
	}
	if v := os.Getenv("COSECHA_FEATURES_CSV"); v != "" {
		cfg.Windowing.FeaturesCSV = v
	}
	if v := os.Getenv("COSECHA_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("COSECHA_MODEL_BANDWIDTH"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Model.Bandwidth = b
		}
	}
	if v := os.Getenv("COSECHA_SENTINEL_TRAINING_CSV"); v != "" {
		cfg.Sentinel.TrainingCSV = v
	}
	if v := os.Getenv("COSECHA_SENTINEL_ALERTS_CSV"); v != "" {
		cfg.Sentinel.AlertsCSV = v
	}
	if v := os.Getenv("COSECHA_SENTINEL_THRESHOLD"); v != "" {
		if th, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sentinel.Threshold = th
		}
	}
	if v := os.Getenv("COSECHA_ADVISOR_OLLAMA_URL"); v != "" {
		cfg.Advisor.OllamaURL = v
	}
	if v := os.Getenv("COSECHA_ADVISOR_RULES_PATH"); v != "" {
		cfg.Advisor.RulesPath = v
	}
	if v := os.Getenv("COSECHA_ADVISOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Advisor.AnalysisInterval = d
		}
	}
	if v := os.Getenv("COSECHA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COSECHA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("COSECHA_STATE_ENABLED"); v != "" {
		cfg.State.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("COSECHA_STATE_ADDR"); v != "" {
		cfg.State.Addr = v
	}
	if v := os.Getenv("COSECHA_STATE_USERNAME"); v != "" {
		cfg.State.Username = v
	}
	if v := os.Getenv("COSECHA_STATE_PASSWORD"); v != "" {
		cfg.State.Password = v
	}
	if v := os.Getenv("COSECHA_STATE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.State.DB = db
		}
	}
	if v := os.Getenv("COSECHA_STATE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.State.TLS = true
	}
	if v := os.Getenv("COSECHA_STATE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.State.DialTimeout = d
		}
	}
	if v := os.Getenv("COSECHA_STATE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.State.ReadTimeout = d
		}
	}
	if v := os.Getenv("COSECHA_STATE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.State.WriteTimeout = d
		}
	}
	if v := os.Getenv("COSECHA_STATE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.State.MaxRetries = retry
		}
	}
	if v := os.Getenv("COSECHA_SIM_MODE"); v != "" {
		cfg.Sim.Mode = v
	}
	if v := os.Getenv("COSECHA_SIM_DATASET"); v != "" {
		cfg.Sim.DatasetPath = v
	}
	if v := os.Getenv("COSECHA_SIM_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sim.Seed = seed
		}
	}
}
