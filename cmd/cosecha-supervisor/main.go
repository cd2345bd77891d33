package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agrostack/cosecha/internal/config"
	"github.com/agrostack/cosecha/internal/supervisor"
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

	logger := utils.Named(utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), "supervisor")

	manager := supervisor.NewManager(
		cfg.Supervisor,
		supervisor.GRPCProber{Timeout: 2 * time.Second},
		logger,
	)

	verb := flag.Arg(0)
	if verb == "" {
		verb = "start"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch verb {
	case "start":
		logger.Info("starting worker fleet", slog.Int("workers", len(cfg.Supervisor.Workers)))
		manager.StartAll(ctx)
		manager.Monitor(ctx)
		logger.Info("shutdown signal received")
		manager.StopAll()
	case "monitor":
		manager.Monitor(ctx)
		logger.Info("shutdown signal received")
		manager.StopAll()
	case "stop":
		manager.StopAll()
	case "status":
		printStatuses(manager.Statuses(ctx))
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [flags] start|stop|status|monitor\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
}

func printStatuses(statuses []supervisor.WorkerStatus) {
	for _, st := range statuses {
		line := fmt.Sprintf("%-14s %-8s", st.Name, st.State)
		if st.PID > 0 {
			line += fmt.Sprintf(" pid=%d", st.PID)
		}
		if st.Health != "" {
			line += " health=" + st.Health
		}
		if st.Restarts > 0 {
			line += fmt.Sprintf(" restarts=%d", st.Restarts)
		}
		if !st.Enabled {
			line += " (disabled)"
		}
		fmt.Println(line)
	}
}
