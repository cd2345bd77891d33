package predict

import (
	"log/slog"

	"github.com/agrostack/cosecha/internal/corpus"
)

// LagFeatureBuilder completes a live feature vector for the regressor. The
// live stream carries only the ten current main features; the 90 lag features
// are borrowed from the corpus row whose main features are nearest to the
// live ones (squared Euclidean distance, linear scan). This is a deliberate
// approximation: borrowed lags are only as good as corpus coverage of the
// live operating point.
type LagFeatureBuilder struct {
	corpus *corpus.Corpus
	logger *slog.Logger
}

// NewLagFeatureBuilder wires the builder to its corpus.
func NewLagFeatureBuilder(c *corpus.Corpus, logger *slog.Logger) *LagFeatureBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LagFeatureBuilder{corpus: c, logger: logger}
}

// Build assembles the full query vector from the live main-feature values.
// A main column absent from values takes the corpus-wide column mean, so a
// sparse message still produces a usable vector.
func (b *LagFeatureBuilder) Build(values map[string]float64) []float64 {
	m := b.corpus.MainDim()
	main := make([]float64, m)
	for i, col := range corpus.MainColumns {
		if v, ok := values[col]; ok {
			main[i] = v
		} else {
			main[i] = b.corpus.MainMean(i)
		}
	}

	features := b.corpus.Features()
	best, bestDist := 0, 0.0
	for i := 0; i < b.corpus.NumSamples(); i++ {
		row := features.RawRowView(i)
		dist := 0.0
		for j := 0; j < m; j++ {
			delta := row[j] - main[j]
			dist += delta * delta
		}
		if i == 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}

	b.logger.Debug("borrowed lag features from nearest corpus row",
		"row", best, "distance", bestDist)

	out := make([]float64, b.corpus.Dim())
	copy(out, main)
	copy(out[m:], features.RawRowView(best)[m:])
	return out
}
