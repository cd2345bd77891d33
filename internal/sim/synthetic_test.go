package sim

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/config"
)

func testSimConfig(seed int64) config.SimConfig {
	return config.SimConfig{
		Mode:       "synthetic",
		AnomalyMin: 30,
		AnomalyMax: 100,
		Seed:       seed,
	}
}

func TestSyntheticRowFields(t *testing.T) {
	g := NewSyntheticGenerator(testSimConfig(1), nil)
	g.clock = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	row := g.Next()

	if got := row["time"]; got != "03/15/24 10:00" {
		t.Fatalf("time = %v", got)
	}

	tair, ok := row["Tair"].(float64)
	if !ok || tair < 10 || tair > 36 {
		t.Fatalf("Tair = %v", row["Tair"])
	}
	for _, name := range []string{"EnScr", "BlackScr"} {
		if v := row[name].(float64); v < 0 || v > 100 {
			t.Fatalf("%s = %v outside 0..100", name, v)
		}
	}
	for _, name := range []string{"AssimLight", "Tot_PAR", "HumDef", "VentLee", "Ventwind", "PipeGrow", "PipeLow"} {
		if v := row[name].(float64); v < 0 {
			t.Fatalf("%s = %v negative", name, v)
		}
	}

	if v := row["Cum_irr"].(float64); v < 1.0 || v > 1.5 {
		t.Fatalf("Cum_irr = %v", v)
	}
	if v := row["EC_drain_PC"].(float64); v < 6.2 || v > 6.6 {
		t.Fatalf("EC_drain_PC = %v", v)
	}
	if v := row["pH_drain_PC"].(float64); v < 6.4 || v > 6.7 {
		t.Fatalf("pH_drain_PC = %v", v)
	}
	if v := row["water_sup"].(int); v < 10 || v > 20 {
		t.Fatalf("water_sup = %v", v)
	}
	if v := row["co2_dos"].(float64); v < 0.001 || v > 0.005 {
		t.Fatalf("co2_dos = %v", v)
	}
	if v := row["t_heat_sp"].(float64); v >= tair {
		t.Fatalf("t_heat_sp = %v, not below Tair %v", v, tair)
	}
	if v := row["t_vent_sp"].(float64); v <= tair {
		t.Fatalf("t_vent_sp = %v, not above Tair %v", v, tair)
	}
	if v := row["scr_enrg_sp"].(int); v < 90 || v > 100 {
		t.Fatalf("scr_enrg_sp = %v", v)
	}
	if row["int_blue_sp"] != 1000 {
		t.Fatalf("int_blue_sp = %v", row["int_blue_sp"])
	}
	if row["scr_blck_vip"] != 96 {
		t.Fatalf("scr_blck_vip = %v", row["scr_blck_vip"])
	}
	if v, present := row["t_grow_min_sp"]; !present || v != nil {
		t.Fatalf("t_grow_min_sp = %v, want null", v)
	}
	if row["Tot_PAR_Lamps"] != row["Tot_PAR"] {
		t.Fatalf("Tot_PAR_Lamps = %v, Tot_PAR = %v", row["Tot_PAR_Lamps"], row["Tot_PAR"])
	}

	second := g.Next()
	if got := second["time"]; got != "03/15/24 10:05" {
		t.Fatalf("second reading time = %v", got)
	}
}

func TestSyntheticDeterminism(t *testing.T) {
	a := NewSyntheticGenerator(testSimConfig(42), nil)
	b := NewSyntheticGenerator(testSimConfig(42), nil)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a.clock, b.clock = start, start

	for i := 0; i < 5; i++ {
		first, other := a.Next(), b.Next()
		if !reflect.DeepEqual(first, other) {
			t.Fatalf("reading %d diverged:\n%v\n%v", i, first, other)
		}
	}
}

func TestSyntheticAnomalyCadence(t *testing.T) {
	cfg := testSimConfig(7)
	cfg.AnomalyMin, cfg.AnomalyMax = 5, 10
	g := NewSyntheticGenerator(cfg, nil)
	g.clock = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		g.Next()
	}
	if n := g.Anomalies(); n < 4 || n > 13 {
		t.Fatalf("anomalies after 60 readings = %d, want roughly every 5-10", n)
	}
}

func TestSyntheticClampsToHistoricalRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "climate.csv")
	var sb strings.Builder
	sb.WriteString("%time,Tair,Rhair\n")
	for i := 0; i < 50; i++ {
		sb.WriteString(fmt.Sprintf("01/01/20 00:00,%.2f,70.0\n", 20.0+0.02*float64(i%10)))
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testSimConfig(3)
	cfg.DatasetPath = path
	// Push anomalies beyond the horizon so every reading stays clamped.
	cfg.AnomalyMin, cfg.AnomalyMax = 500, 600
	g := NewSyntheticGenerator(cfg, nil)
	g.clock = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Historical Tair spans 20.00..20.18, so values must stay within
	// 0.8*min..1.2*max (plus final rounding).
	for i := 0; i < 200; i++ {
		row := g.Next()
		if v := row["Tair"].(float64); v < 15.99 || v > 24.23 {
			t.Fatalf("reading %d: Tair = %v escaped historical bounds", i, v)
		}
	}
}

func TestAnomalyTransformsRespectHumidityCap(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		for _, tr := range anomalyTransforms["Rhair"] {
			v := tr.apply(rng, 95)
			if tr.kind == "spike_high" && v > 100 {
				t.Fatalf("Rhair %s produced %v", tr.kind, v)
			}
			if tr.kind == "spike_low" && v >= 95 {
				t.Fatalf("Rhair %s produced %v", tr.kind, v)
			}
		}
	}
}
