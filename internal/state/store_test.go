package state

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/agrostack/cosecha/internal/cache"
	"github.com/agrostack/cosecha/internal/models"
)

func testStore() *Store {
	return New(cache.NewMemoryProvider(), Config{AnomalyRing: 3})
}

func TestStoreLatestFeaturesRoundTrip(t *testing.T) {
	store := testStore()
	ctx := context.Background()

	if _, err := store.LatestFeatures(ctx); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected miss before first write, got %v", err)
	}

	ts := "2024-03-15T10:00:00Z"
	msg := models.FeatureMessage{
		Timestamp: &ts,
		Features: map[string]models.FloatOrNull{
			"Tair__mean":  21.5,
			"Tair__slope": models.FloatOrNull(math.NaN()),
		},
		Source: models.FeatureSource,
	}
	if err := store.SetLatestFeatures(ctx, msg); err != nil {
		t.Fatalf("set features: %v", err)
	}

	got, err := store.LatestFeatures(ctx)
	if err != nil {
		t.Fatalf("get features: %v", err)
	}
	if got.Timestamp == nil || *got.Timestamp != ts {
		t.Fatalf("unexpected timestamp %v", got.Timestamp)
	}
	if float64(got.Features["Tair__mean"]) != 21.5 {
		t.Fatalf("unexpected mean %v", got.Features["Tair__mean"])
	}
	// Undefined statistics survive the round trip as NaN.
	if !math.IsNaN(float64(got.Features["Tair__slope"])) {
		t.Fatalf("expected NaN slope, got %v", got.Features["Tair__slope"])
	}
}

func TestStoreAnomalyRing(t *testing.T) {
	store := testStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := models.Anomaly{
			Timestamp: "t",
			Score:     float64(i),
			Source:    models.AnomalySource,
		}
		if err := store.PushAnomaly(ctx, a); err != nil {
			t.Fatalf("push anomaly: %v", err)
		}
	}

	recent, err := store.RecentAnomalies(ctx, 10)
	if err != nil {
		t.Fatalf("recent anomalies: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected ring of 3, got %d", len(recent))
	}
	if recent[0].Score != 4 {
		t.Fatalf("expected newest first, got score %v", recent[0].Score)
	}
}

func TestStoreMarkProcessed(t *testing.T) {
	store := testStore()
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "msg-1")
	if err != nil || !first {
		t.Fatalf("first mark should win: %v %v", first, err)
	}
	second, err := store.MarkProcessed(ctx, "msg-1")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if second {
		t.Fatal("duplicate id should not win")
	}
}
