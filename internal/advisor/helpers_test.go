package advisor

import (
	"context"
	"net/http"

	"github.com/agrostack/cosecha/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *http.Client {
	return &http.Client{Transport: rt}
}

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, opts GenerateOptions, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type capturePublisher struct {
	topics   []string
	messages []any
}

func (p *capturePublisher) PublishJSON(ctx context.Context, topic string, v any) error {
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, v)
	return nil
}

type memoryDeduper struct {
	seen map[string]bool
}

func (d *memoryDeduper) MarkProcessed(ctx context.Context, id string) (bool, error) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

type stubSnapshot struct {
	features    models.FeatureMessage
	featuresErr error
	anomalies   []models.Anomaly
}

func (s *stubSnapshot) LatestFeatures(ctx context.Context) (models.FeatureMessage, error) {
	if s.featuresErr != nil {
		return models.FeatureMessage{}, s.featuresErr
	}
	return s.features, nil
}

func (s *stubSnapshot) RecentAnomalies(ctx context.Context, n int) ([]models.Anomaly, error) {
	return s.anomalies, nil
}
