package anomaly

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// writeTrainingCSV produces a benign climate history with mild deterministic
// variation in every scored column.
func writeTrainingCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("%time," + strings.Join(FeatureColumns, ",") + "\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "2020-01-01 %02d:00:00,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g\n",
			i%24,
			20+0.3*float64(i%10),     // Tair
			65+float64(i%7),          // Rhair
			3+0.1*float64(i%5),       // HumDef
			100+5*float64(i%20),      // AssimLight
			180+4*float64(i%15),      // Tot_PAR
			40+float64(i%30),         // EnScr
			45+float64(i%20),         // BlackScr
			8+0.2*float64(i%10),      // VentLee
			4+0.1*float64(i%10),      // Ventwind
			550+8*float64(i%25),      // CO2air
		)
	}
	path := filepath.Join(t.TempDir(), "climate.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write training csv: %v", err)
	}
	return path
}

func testDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(Config{
		TrainingCSV: writeTrainingCSV(t),
		Trees:       100,
		SampleSize:  64,
		Threshold:   0.6,
		Seed:        42,
	}, nil)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	return d
}

func record(values map[string]float64) models.SensorRecord {
	return models.SensorRecord{
		Time:   time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Values: values,
	}
}

func typicalValues() map[string]float64 {
	return map[string]float64{
		"Tair": 21.3, "Rhair": 68, "HumDef": 3.2, "AssimLight": 150,
		"Tot_PAR": 208, "EnScr": 55, "BlackScr": 54, "VentLee": 8.9,
		"Ventwind": 4.5, "CO2air": 646,
	}
}

func TestDetectorSkipsIncompleteRecord(t *testing.T) {
	d := testDetector(t)

	values := typicalValues()
	delete(values, "Tair")
	_, err := d.Evaluate(record(values))
	if !errors.Is(err, utils.ErrMalformedInput) {
		t.Fatalf("error = %v, want ErrMalformedInput", err)
	}
	if !strings.Contains(err.Error(), "Tair") {
		t.Fatalf("error should name the missing column: %v", err)
	}
}

func TestDetectorPassesTypicalRecord(t *testing.T) {
	d := testDetector(t)

	anomaly, err := d.Evaluate(record(typicalValues()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if anomaly != nil {
		t.Fatalf("typical record flagged anomalous: score %v", anomaly.Score)
	}
}

func TestDetectorFlagsInjectedSpike(t *testing.T) {
	d := testDetector(t)

	values := typicalValues()
	values["Tair"] = 60
	values["Rhair"] = 15
	values["CO2air"] = 3000
	values["AssimLight"] = 600

	anomaly, err := d.Evaluate(record(values))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if anomaly == nil {
		t.Fatal("spiked record not flagged")
	}
	if anomaly.Score < d.Threshold() {
		t.Fatalf("score %v below threshold %v", anomaly.Score, d.Threshold())
	}
	if anomaly.Source != models.AnomalySource {
		t.Fatalf("source = %q", anomaly.Source)
	}
	if anomaly.Timestamp != "2024-03-15T10:00:00Z" {
		t.Fatalf("timestamp = %q", anomaly.Timestamp)
	}
	if len(anomaly.DetectedValues) != 4 {
		t.Fatalf("detected values = %v, want the four reported signals", anomaly.DetectedValues)
	}
	if anomaly.DetectedValues["Tair"] != 60 {
		t.Fatalf("Tair = %v, want 60", anomaly.DetectedValues["Tair"])
	}
	if _, ok := anomaly.DetectedValues["EnScr"]; ok {
		t.Fatal("EnScr should not be reported")
	}
}

func TestLoadTrainingRowsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "climate.csv")
	if err := os.WriteFile(path, []byte("time,Tair\n2020-01-01,21\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadTrainingRows(path, nil)
	if err == nil || !strings.Contains(err.Error(), "Rhair") {
		t.Fatalf("expected missing-column error naming Rhair, got %v", err)
	}
}
