package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/models"
)

type captureWriter struct {
	features  []models.FeatureMessage
	anomalies []models.Anomaly
}

func (w *captureWriter) SetLatestFeatures(ctx context.Context, msg models.FeatureMessage) error {
	w.features = append(w.features, msg)
	return nil
}

func (w *captureWriter) PushAnomaly(ctx context.Context, a models.Anomaly) error {
	w.anomalies = append(w.anomalies, a)
	return nil
}

func TestMirrorTracksLatestFeatures(t *testing.T) {
	writer := &captureWriter{}
	mirror := NewMirror(writer, nil)

	messages := make(chan []byte, 3)
	messages <- []byte(`{"timestamp":"2024-03-15T09:00:00Z","features":{"Tair__mean":22.5},"source":"preprocessing_predictive"}`)
	messages <- []byte(`not json`)
	messages <- []byte(`{"timestamp":"2024-03-15T10:00:00Z","features":{"Tair__mean":23.1,"Rhair__std":null},"source":"preprocessing_predictive"}`)
	close(messages)

	mirror.Features(context.Background(), messages)

	if len(writer.features) != 2 {
		t.Fatalf("expected 2 mirrored feature vectors, got %d", len(writer.features))
	}
	last := writer.features[1]
	if last.Timestamp == nil || *last.Timestamp != "2024-03-15T10:00:00Z" {
		t.Fatalf("unexpected mirrored timestamp: %v", last.Timestamp)
	}
	if got := float64(last.Features["Tair__mean"]); got != 23.1 {
		t.Fatalf("unexpected mirrored Tair__mean: %v", got)
	}
}

func TestMirrorForwardsAnomalies(t *testing.T) {
	writer := &captureWriter{}
	mirror := NewMirror(writer, nil)

	messages := make(chan []byte, 2)
	messages <- []byte(`{"timestamp":"2024-03-15 10:00:00","anomaly_score":0.72,"detected_values":{"Tair":41.2},"source":"iforest_model"}`)
	messages <- []byte(`garbled`)
	close(messages)

	out := mirror.Anomalies(context.Background(), messages)

	var forwarded [][]byte
	deadline := time.After(2 * time.Second)
	for len(forwarded) < 2 {
		select {
		case payload, ok := <-out:
			if !ok {
				t.Fatalf("output closed after %d payloads", len(forwarded))
			}
			forwarded = append(forwarded, payload)
		case <-deadline:
			t.Fatalf("timed out after %d payloads", len(forwarded))
		}
	}

	if len(writer.anomalies) != 1 {
		t.Fatalf("expected 1 recorded anomaly, got %d", len(writer.anomalies))
	}
	if writer.anomalies[0].Score != 0.72 {
		t.Fatalf("unexpected recorded score: %v", writer.anomalies[0].Score)
	}
	if string(forwarded[1]) != "garbled" {
		t.Fatalf("unparseable payloads must still reach the alert agent, got %q", forwarded[1])
	}
}
