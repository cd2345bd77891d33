package state

import (
	"log/slog"

	"github.com/agrostack/cosecha/internal/cache"
	"github.com/agrostack/cosecha/internal/config"
)

// Open builds the cross-worker state store from config: Valkey when enabled
// and reachable, process-local memory otherwise. The second return reports
// whether the store is actually shared between workers, which decides whether
// a worker must mirror broker traffic into its own snapshot.
func Open(cfg config.StateConfig, logger *slog.Logger) (*Store, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	var provider cache.Provider
	shared := false
	if cfg.Enabled && cfg.Addr != "" {
		vk, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err != nil {
			logger.Warn("shared state unavailable, using process-local memory",
				slog.String("addr", cfg.Addr),
				slog.Any("error", err),
			)
		} else {
			logger.Info("shared state connected", slog.String("addr", cfg.Addr))
			provider = vk
			shared = true
		}
	}
	if provider == nil {
		provider = cache.NewMemoryProvider()
	}

	return New(provider, Config{
		FeatureTTL:    cfg.FeatureTTL,
		PredictionTTL: cfg.PredictionTTL,
		ProcessedTTL:  cfg.ProcessedTTL,
		AnomalyRing:   cfg.AnomalyRing,
	}), shared
}
