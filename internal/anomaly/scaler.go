package anomaly

import "math"

// StandardScaler centres and scales feature columns to zero mean and unit
// variance. Columns without spread keep scale 1 so they pass through centred.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// FitScaler computes column means and population standard deviations over the
// training rows.
func FitScaler(data [][]float64) *StandardScaler {
	if len(data) == 0 {
		return &StandardScaler{}
	}
	d := len(data[0])
	s := &StandardScaler{
		mean:  make([]float64, d),
		scale: make([]float64, d),
	}

	for _, row := range data {
		for j, v := range row {
			s.mean[j] += v
		}
	}
	n := float64(len(data))
	for j := range s.mean {
		s.mean[j] /= n
	}

	for _, row := range data {
		for j, v := range row {
			delta := v - s.mean[j]
			s.scale[j] += delta * delta
		}
	}
	for j := range s.scale {
		s.scale[j] = math.Sqrt(s.scale[j] / n)
		if s.scale[j] == 0 {
			s.scale[j] = 1
		}
	}
	return s
}

// Dim reports the fitted column count.
func (s *StandardScaler) Dim() int { return len(s.mean) }

// Transform scales one row with the fitted parameters.
func (s *StandardScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.mean[j]) / s.scale[j]
	}
	return out
}
