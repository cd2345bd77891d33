package state

import (
	"context"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/config"
	"github.com/agrostack/cosecha/internal/models"
)

func TestOpenFallsBackToLocalMemory(t *testing.T) {
	store, shared := Open(config.StateConfig{Enabled: false, AnomalyRing: 10}, nil)
	defer store.Close()

	if shared {
		t.Fatal("disabled state must not report as shared")
	}

	ctx := context.Background()
	msg := models.FeatureMessage{Features: map[string]models.FloatOrNull{"Tair__mean": 21.5}, Source: models.FeatureSource}
	if err := store.SetLatestFeatures(ctx, msg); err != nil {
		t.Fatalf("SetLatestFeatures: %v", err)
	}
	got, err := store.LatestFeatures(ctx)
	if err != nil {
		t.Fatalf("LatestFeatures: %v", err)
	}
	if got.Features["Tair__mean"] != 21.5 {
		t.Fatalf("round trip lost the feature value: %v", got.Features)
	}
}

func TestOpenUnreachableValkeyDegrades(t *testing.T) {
	cfg := config.StateConfig{
		Enabled:     true,
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  1,
	}
	store, shared := Open(cfg, nil)
	defer store.Close()

	if shared {
		t.Fatal("unreachable Valkey must degrade to local memory")
	}
	if _, err := store.LatestPrediction(context.Background()); err == nil {
		t.Fatal("fresh local store should miss")
	}
}
