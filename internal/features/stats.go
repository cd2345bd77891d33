package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// summary holds the eight per-variable aggregates of one window. Fields are
// NaN when the window had no finite sample for the variable.
type summary struct {
	mean   float64
	median float64
	min    float64
	max    float64
	std    float64
	p25    float64
	p75    float64
	rng    float64
}

func undefinedSummary() summary {
	nan := math.NaN()
	return summary{mean: nan, median: nan, min: nan, max: nan, std: nan, p25: nan, p75: nan, rng: nan}
}

// summarize computes the aggregate block over finite samples. A single
// sample yields zero spread, not NaN.
func summarize(values []float64) summary {
	if len(values) == 0 {
		return undefinedSummary()
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := summary{
		mean:   stat.Mean(sorted, nil),
		median: percentile(sorted, 50),
		min:    floats.Min(sorted),
		max:    floats.Max(sorted),
		std:    populationStd(sorted),
		p25:    percentile(sorted, 25),
		p75:    percentile(sorted, 75),
	}
	s.rng = s.max - s.min
	return s
}

// percentile interpolates linearly between closest ranks, matching the
// convention of the historical feature files. Input must be sorted.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	pos := (p / 100) * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// populationStd divides by n, so one sample reports zero spread.
func populationStd(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	mean := stat.Mean(values, nil)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

// slope fits value against elapsed seconds with the closed-form
// least-squares formula and returns only the rate of change. Fewer than two
// pairs, or pairs sharing one instant, leave the trend undefined.
func slope(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return math.NaN()
	}

	xMean := stat.Mean(xs, nil)
	yMean := stat.Mean(ys, nil)

	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - xMean
		sxy += dx * (ys[i] - yMean)
		sxx += dx * dx
	}
	if sxx == 0 {
		return math.NaN()
	}
	return sxy / sxx
}
