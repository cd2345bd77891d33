package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrostack/cosecha/internal/advisor"
	"github.com/agrostack/cosecha/internal/api"
	"github.com/agrostack/cosecha/internal/config"
	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/mqtt"
	"github.com/agrostack/cosecha/internal/state"
	"github.com/agrostack/cosecha/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.Named(utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), "advisor")
	logger.Info("starting cosecha-advisor",
		slog.String("health_address", cfg.Server.HealthAddress),
		slog.String("alert_model", cfg.Advisor.AlertModel),
		slog.String("analysis_model", cfg.Advisor.AnalysisModel),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	rules, err := advisor.LoadRules(cfg.Advisor.RulesPath, logger)
	if err != nil {
		logger.Error("failed to load rulepack", slog.Any("error", err))
		os.Exit(1)
	}

	store, shared := state.Open(cfg.State, logger)
	defer store.Close()

	client, err := mqtt.NewClient(cfg.MQTT, "advisor", logger)
	if err != nil {
		logger.Error("failed to connect to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Close()

	anomalies, err := client.Subscribe(cfg.MQTT.Topics.Anomalies, 256)
	if err != nil {
		logger.Error("failed to subscribe", slog.String("topic", cfg.MQTT.Topics.Anomalies), slog.Any("error", err))
		os.Exit(1)
	}
	predictions, err := client.Subscribe(cfg.MQTT.Topics.Predictions, 64)
	if err != nil {
		logger.Error("failed to subscribe", slog.String("topic", cfg.MQTT.Topics.Predictions), slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without shared state the preprocessor's and sentinel's snapshot writes
	// never reach this process, so mirror them off the broker instead.
	alertFeed := anomalies
	if !shared {
		features, err := client.Subscribe(cfg.MQTT.Topics.Features, 64)
		if err != nil {
			logger.Error("failed to subscribe", slog.String("topic", cfg.MQTT.Topics.Features), slog.Any("error", err))
			os.Exit(1)
		}
		mirror := advisor.NewMirror(store, logger)
		go mirror.Features(ctx, features)
		alertFeed = mirror.Anomalies(ctx, anomalies)
	}

	ollama := advisor.NewOllamaClient(cfg.Advisor.OllamaURL)

	alertAgent := advisor.NewAlertAgent(advisor.AlertAgentConfig{
		Rules:     rules,
		Generator: ollama,
		Publisher: client,
		Deduper:   store,
		Topic:     cfg.MQTT.Topics.Alerts,
		Model:     cfg.Advisor.AlertModel,
		Timeout:   cfg.Advisor.AlertTimeout,
	}, logger)

	recommendAgent := advisor.NewRecommendAgent(advisor.RecommendAgentConfig{
		Rules:     rules,
		Generator: ollama,
		Publisher: client,
		Snapshot:  store,
		Deduper:   store,
		Topic:     cfg.MQTT.Topics.Recommendations,
		Model:     cfg.Advisor.AnalysisModel,
		Timeout:   cfg.Advisor.AnalysisTimeout,
		Interval:  cfg.Advisor.AnalysisInterval,
	}, logger)

	admin, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create admin server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := admin.Start(); serveErr != nil {
			logger.Error("admin server exited", slog.Any("error", serveErr))
			stop()
		}
	}()
	admin.SetServing(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		alertAgent.Run(ctx, alertFeed)
	}()
	go func() {
		defer wg.Done()
		recommendAgent.Run(ctx, predictions)
	}()
	wg.Wait()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	admin.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("cosecha-advisor stopped")
}
