package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agrostack/cosecha/internal/anomaly"
	"github.com/agrostack/cosecha/internal/models"
)

// benignClimateCSV writes training history with mild deterministic variation
// in every scored column.
func benignClimateCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("%time," + strings.Join(anomaly.FeatureColumns, ",") + "\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "2020-01-01 %02d:00:00,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g\n",
			i%24,
			20+0.3*float64(i%10),
			65+float64(i%7),
			3+0.1*float64(i%5),
			100+5*float64(i%20),
			180+4*float64(i%15),
			40+float64(i%30),
			45+float64(i%20),
			8+0.2*float64(i%10),
			4+0.1*float64(i%10),
			550+8*float64(i%25),
		)
	}
	path := filepath.Join(t.TempDir(), "climate.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write climate csv: %v", err)
	}
	return path
}

func testSentinel(t *testing.T, sink AlertSink, pub Publisher, st AnomalyState) *SentinelService {
	t.Helper()
	det, err := anomaly.NewDetector(anomaly.Config{
		TrainingCSV: benignClimateCSV(t),
		Trees:       100,
		SampleSize:  64,
		Threshold:   0.6,
		Seed:        42,
	}, nil)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	return NewSentinelService(nil, det, sink, pub, st, "invernadero/anomalias")
}

func rawPayload(tair, rhair, co2, assim float64) []byte {
	return []byte(fmt.Sprintf(
		`{"time":"2024-03-15 10:00:00","Tair":%g,"Rhair":%g,"HumDef":3.2,"AssimLight":%g,"Tot_PAR":208,"EnScr":55,"BlackScr":54,"VentLee":8.9,"Ventwind":4.5,"CO2air":%g}`,
		tair, rhair, assim, co2))
}

func TestSentinelPublishesFlaggedObservation(t *testing.T) {
	sink := &captureAlertSink{}
	pub := &capturePublisher{}
	st := &stubState{}
	svc := testSentinel(t, sink, pub, st)

	ctx := context.Background()
	svc.handle(ctx, rawPayload(21.3, 68, 646, 150))
	if len(pub.messages) != 0 {
		t.Fatalf("typical record published %d anomalies", len(pub.messages))
	}

	svc.handle(ctx, rawPayload(60, 15, 3000, 600))

	if len(pub.messages) != 1 {
		t.Fatalf("published %d anomalies, want 1", len(pub.messages))
	}
	if pub.topics[0] != "invernadero/anomalias" {
		t.Fatalf("topic = %q", pub.topics[0])
	}
	flagged, ok := pub.messages[0].(*models.Anomaly)
	if !ok {
		t.Fatalf("published %T, want *models.Anomaly", pub.messages[0])
	}
	if flagged.Score < 0.6 {
		t.Fatalf("score = %v, want >= threshold", flagged.Score)
	}
	if flagged.DetectedValues["Tair"] != 60 {
		t.Fatalf("detected Tair = %v, want 60", flagged.DetectedValues["Tair"])
	}
	if len(sink.records) != 1 || sink.scores[0] != flagged.Score {
		t.Fatalf("alert sink entries = %d, want the flagged record with its score", len(sink.records))
	}
	if len(st.anomalies) != 1 {
		t.Fatalf("state pushes = %d, want 1", len(st.anomalies))
	}
}

func TestSentinelSkipsUnscoreableRecords(t *testing.T) {
	pub := &capturePublisher{}
	svc := testSentinel(t, nil, pub, nil)

	ctx := context.Background()
	svc.handle(ctx, []byte("not json"))
	svc.handle(ctx, []byte(`{"time":"2024-03-15 10:00:00","Tair":21.3}`))

	if len(pub.messages) != 0 {
		t.Fatalf("unscoreable records published %d messages", len(pub.messages))
	}
}
