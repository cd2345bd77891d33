package features

import (
	"math"
	"testing"
)

func TestPercentileEdges(t *testing.T) {
	single := []float64{7}
	if got := percentile(single, 25); got != 7 {
		t.Fatalf("single-element percentile = %v, want 7", got)
	}

	sorted := []float64{10, 20, 30, 40, 50}
	if got := percentile(sorted, 0); got != 10 {
		t.Fatalf("p0 = %v, want 10", got)
	}
	if got := percentile(sorted, 100); got != 50 {
		t.Fatalf("p100 = %v, want 50", got)
	}
	if got := percentile(sorted, 50); got != 30 {
		t.Fatalf("p50 = %v, want 30", got)
	}
	// Position 1.6 between 20 and 30.
	if got := percentile(sorted, 40); math.Abs(got-26) > 1e-12 {
		t.Fatalf("p40 = %v, want 26", got)
	}
}

func TestSlopeDegenerate(t *testing.T) {
	if got := slope(nil, nil); !math.IsNaN(got) {
		t.Fatalf("empty slope = %v, want NaN", got)
	}
	if got := slope([]float64{5}, []float64{1}); !math.IsNaN(got) {
		t.Fatalf("one-point slope = %v, want NaN", got)
	}
	// All samples at the same instant: no x spread, slope undefined.
	if got := slope([]float64{3, 3, 3}, []float64{1, 2, 3}); !math.IsNaN(got) {
		t.Fatalf("zero-spread slope = %v, want NaN", got)
	}
}

func TestSlopeLeastSquares(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{1, 3, 5, 7}
	if got := slope(xs, ys); math.Abs(got-2) > 1e-12 {
		t.Fatalf("slope = %v, want 2", got)
	}

	// Noise around y = 0.5x should not flip the sign.
	noisy := slope([]float64{0, 10, 20, 30}, []float64{0.1, 4.9, 10.2, 14.8})
	if noisy <= 0 {
		t.Fatalf("noisy ramp slope = %v, want > 0", noisy)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	for name, v := range map[string]float64{
		"mean": s.mean, "median": s.median, "min": s.min, "max": s.max,
		"std": s.std, "p25": s.p25, "p75": s.p75, "range": s.rng,
	} {
		if !math.IsNaN(v) {
			t.Fatalf("%s = %v, want NaN for empty input", name, v)
		}
	}
}
