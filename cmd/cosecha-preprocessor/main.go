package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrostack/cosecha/internal/api"
	"github.com/agrostack/cosecha/internal/config"
	"github.com/agrostack/cosecha/internal/featurelog"
	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/mqtt"
	"github.com/agrostack/cosecha/internal/services"
	"github.com/agrostack/cosecha/internal/state"
	"github.com/agrostack/cosecha/internal/stream"
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

	logger := utils.Named(utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), "preprocessor")
	logger.Info("starting cosecha-preprocessor",
		slog.String("health_address", cfg.Server.HealthAddress),
		slog.Duration("window_interval", cfg.Windowing.Interval),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	store, _ := state.Open(cfg.State, logger)
	defer store.Close()

	var sink services.FeatureSink
	if cfg.Windowing.FeaturesCSV != "" {
		writer, err := featurelog.Open(cfg.Windowing.FeaturesCSV)
		if err != nil {
			logger.Warn("feature log unavailable, continuing without durable rows",
				slog.String("path", cfg.Windowing.FeaturesCSV),
				slog.Any("error", err),
			)
		} else {
			sink = writer
		}
	}

	client, err := mqtt.NewClient(cfg.MQTT, "preprocessor", logger)
	if err != nil {
		logger.Error("failed to connect to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Close()

	raw, err := client.Subscribe(cfg.MQTT.Topics.Raw, 256)
	if err != nil {
		logger.Error("failed to subscribe", slog.String("topic", cfg.MQTT.Topics.Raw), slog.Any("error", err))
		os.Exit(1)
	}

	svc := services.NewPreprocessService(
		logger,
		stream.NewStreamBuffer(cfg.Windowing.Interval),
		sink,
		client,
		store,
		cfg.MQTT.Topics.Features,
	)

	admin, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create admin server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	svc.Run(ctx, raw)
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
	logger.Info("cosecha-preprocessor stopped")
}
