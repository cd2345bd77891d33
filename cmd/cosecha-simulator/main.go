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
	"github.com/agrostack/cosecha/internal/metrics"
	"github.com/agrostack/cosecha/internal/mqtt"
	"github.com/agrostack/cosecha/internal/sim"
	"github.com/agrostack/cosecha/internal/utils"
)

// generator is satisfied by both simulation modes.
type generator interface {
	Next() map[string]any
}

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

	logger := utils.Named(utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), "simulator")
	logger.Info("starting cosecha-simulator",
		slog.String("health_address", cfg.Server.HealthAddress),
		slog.String("mode", cfg.Sim.Mode),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		gen      generator
		topic    string
		interval time.Duration
	)
	switch cfg.Sim.Mode {
	case "synthetic":
		gen = sim.NewSyntheticGenerator(cfg.Sim, logger)
		topic = cfg.MQTT.Topics.Raw
		interval = cfg.Sim.Interval
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}
	case "replay":
		replay, err := sim.NewReplayGenerator(cfg.Sim, logger)
		if err != nil {
			logger.Error("failed to build replay cycles", slog.Any("error", err))
			os.Exit(1)
		}
		gen = replay
		topic = cfg.MQTT.Topics.ModelData
		interval = cfg.Sim.ReplayInterval
		if interval <= 0 {
			interval = 2 * time.Second
		}
	default:
		logger.Error("unknown simulation mode", slog.String("mode", cfg.Sim.Mode))
		os.Exit(1)
	}

	client, err := mqtt.NewClient(cfg.MQTT, "simulator", logger)
	if err != nil {
		logger.Error("failed to connect to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Close()

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

	emit(ctx, logger, client, gen, topic, interval)
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
	logger.Info("cosecha-simulator stopped")
}

// emit publishes one generated payload per tick until ctx is cancelled.
func emit(ctx context.Context, logger *slog.Logger, client *mqtt.Client, gen generator, topic string, interval time.Duration) {
	logger.Info("emitting simulated data", slog.String("topic", topic), slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emitted := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("simulation finished", slog.Int("emitted", emitted))
			return
		case <-ticker.C:
			if err := client.PublishJSON(ctx, topic, gen.Next()); err != nil {
				metrics.ObservePublishError(topic)
				logger.Error("publish failed", slog.String("topic", topic), slog.Any("error", err))
				continue
			}
			emitted++
			if emitted%100 == 0 {
				logger.Info("simulation progress", slog.Int("emitted", emitted))
			}
		}
	}
}
