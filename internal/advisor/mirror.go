package advisor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// SnapshotWriter records broker traffic into the advisor's snapshot.
type SnapshotWriter interface {
	SetLatestFeatures(ctx context.Context, msg models.FeatureMessage) error
	PushAnomaly(ctx context.Context, a models.Anomaly) error
}

// Mirror keeps a worker-local snapshot current from broker traffic, for
// deployments running without shared state. With a shared cache the
// preprocessor and sentinel write these entries themselves, so the mirror is
// only wired when the advisor falls back to process-local memory.
type Mirror struct {
	writer SnapshotWriter
	logger *slog.Logger
}

// NewMirror wires the bridge onto a snapshot writer.
func NewMirror(writer SnapshotWriter, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{writer: writer, logger: logger}
}

// Features consumes feature payloads until ctx is cancelled or the channel
// closes, keeping only the newest vector.
func (m *Mirror) Features(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-messages:
			if !ok {
				return
			}
			var msg models.FeatureMessage
			if err := json.Unmarshal(utils.ScrubNonFiniteJSON(payload), &msg); err != nil {
				m.logger.Warn("dropping malformed feature payload", "error", err)
				continue
			}
			if err := m.writer.SetLatestFeatures(ctx, msg); err != nil {
				m.logger.Warn("mirroring features failed", "error", err)
			}
		}
	}
}

// Anomalies consumes anomaly payloads, recording each one before forwarding
// it on the returned channel, so one subscription feeds both the snapshot
// ring and the alert agent. The returned channel closes when the input does.
func (m *Mirror) Anomalies(ctx context.Context, messages <-chan []byte) <-chan []byte {
	out := make(chan []byte, cap(messages))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-messages:
				if !ok {
					return
				}
				m.record(ctx, payload)
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (m *Mirror) record(ctx context.Context, payload []byte) {
	var a models.Anomaly
	if err := json.Unmarshal(utils.ScrubNonFiniteJSON(payload), &a); err != nil {
		// Forwarded anyway; the alert agent logs its own parse failures.
		return
	}
	if err := m.writer.PushAnomaly(ctx, a); err != nil {
		m.logger.Warn("mirroring anomaly failed", "error", err)
	}
}
