package anomaly

import (
	"math"
	"testing"
)

func TestAveragePathLength(t *testing.T) {
	if got := averagePathLength(1); got != 0 {
		t.Fatalf("c(1) = %v, want 0", got)
	}
	if got := averagePathLength(2); math.Abs(got-0.15443133) > 1e-6 {
		t.Fatalf("c(2) = %v, want 0.15443133", got)
	}
	if averagePathLength(256) <= averagePathLength(16) {
		t.Fatal("c(n) should grow with n")
	}
}

func TestForestScoresOutlierHigher(t *testing.T) {
	// A tight 2-D grid of inliers.
	data := make([][]float64, 200)
	for i := range data {
		data[i] = []float64{float64(i%10) / 10, float64(i/10) / 20}
	}

	f := NewForest(100, 128, 42)
	f.Train(data)
	if !f.Trained() {
		t.Fatal("forest not trained")
	}

	center := f.Score([]float64{0.45, 0.5})
	outlier := f.Score([]float64{10, 10})

	if outlier <= center {
		t.Fatalf("outlier score %v not above inlier score %v", outlier, center)
	}
	if outlier < 0.6 {
		t.Fatalf("distant outlier score %v unexpectedly low", outlier)
	}
	if center >= 0.6 {
		t.Fatalf("grid-center score %v unexpectedly high", center)
	}
}

func TestForestUntrainedScoresMidpoint(t *testing.T) {
	f := NewForest(10, 32, 1)
	if got := f.Score([]float64{1, 2}); got != 0.5 {
		t.Fatalf("untrained score = %v, want 0.5", got)
	}
}

func TestScalerTransform(t *testing.T) {
	s := FitScaler([][]float64{{1, 10}, {3, 10}})

	got := s.Transform([]float64{3, 10})
	if math.Abs(got[0]-1) > 1e-12 {
		t.Fatalf("scaled[0] = %v, want 1", got[0])
	}
	// Constant column keeps scale 1 and is only centred.
	if math.Abs(got[1]) > 1e-12 {
		t.Fatalf("scaled[1] = %v, want 0", got[1])
	}

	if s.Dim() != 2 {
		t.Fatalf("dim = %d, want 2", s.Dim())
	}
}
