package predict

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/agrostack/cosecha/internal/corpus"
	"github.com/agrostack/cosecha/internal/utils"
)

const (
	// covarianceEpsilon keeps the regularized covariance invertible even on
	// rank-deficient feature sets.
	covarianceEpsilon = 1e-6

	// weightFloor is the total-weight underflow threshold below which the
	// estimator degrades to the single nearest neighbour.
	weightFloor = 1e-50

	// fallbackDays is the answer of last resort when no corpus target is
	// available to average.
	fallbackDays = 35.0
)

// KernelRegressor is a Nadaraya-Watson estimator over the training corpus:
// a Gaussian-kernel weighted average of the corpus targets, with weights
// decaying in Mahalanobis distance from the query point. The regularized
// covariance is factorized once at construction and shared by every query.
type KernelRegressor struct {
	corpus  *corpus.Corpus
	chol    mat.Cholesky
	logDet  float64
	logNorm float64
	logger  *slog.Logger
}

// NewKernelRegressor factorizes Sigma = cov(X)*h^2 + eps*I for the given
// bandwidth. A factorization failure after regularization means the corpus is
// unusable and is reported as a degenerate-model error.
func NewKernelRegressor(c *corpus.Corpus, bandwidth float64, logger *slog.Logger) (*KernelRegressor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := c.Dim()

	var sigma mat.SymDense
	stat.CovarianceMatrix(&sigma, c.Features(), nil)

	h2 := bandwidth * bandwidth
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := sigma.At(i, j) * h2
			if i == j {
				v += covarianceEpsilon
			}
			sigma.SetSym(i, j, v)
		}
	}

	r := &KernelRegressor{corpus: c, logger: logger}
	if ok := r.chol.Factorize(&sigma); !ok {
		return nil, fmt.Errorf("covariance not positive definite after regularization: %w", utils.ErrDegenerateModel)
	}
	r.logDet = r.chol.LogDet()
	r.logNorm = -0.5 * (float64(d)*math.Log(2*math.Pi) + r.logDet)
	return r, nil
}

// Estimate answers a query vector with the weighted average of the corpus
// targets. Degenerate inputs never abort; they walk a fixed fallback chain:
// NaN anywhere in the query yields the unweighted target mean, total weight
// underflow yields the nearest neighbour's target, and a NaN quotient yields
// the target mean again.
func (r *KernelRegressor) Estimate(x []float64) float64 {
	n := r.corpus.NumSamples()
	if n == 0 {
		return fallbackDays
	}
	for i, v := range x {
		if math.IsNaN(v) {
			r.logger.Error("query vector contains NaN, falling back to target mean", "index", i)
			return r.corpus.TargetMean()
		}
	}

	d := r.corpus.Dim()
	features := r.corpus.Features()
	targets := r.corpus.Targets()

	diff := mat.NewVecDense(d, nil)
	sol := mat.NewVecDense(d, nil)
	weights := make([]float64, n)
	dist2 := make([]float64, n)

	total := 0.0
	for i := 0; i < n; i++ {
		row := features.RawRowView(i)
		for j := 0; j < d; j++ {
			diff.SetVec(j, row[j]-x[j])
		}
		if err := r.chol.SolveVecTo(sol, diff); err != nil {
			r.logger.Error("covariance solve failed, falling back to target mean", "error", err)
			return r.corpus.TargetMean()
		}
		dist2[i] = mat.Dot(diff, sol)
		weights[i] = math.Exp(-0.5*dist2[i] + r.logNorm)
		total += weights[i]
	}

	if total <= weightFloor {
		best := 0
		for i, v := range dist2 {
			if v < dist2[best] {
				best = i
			}
		}
		r.logger.Warn("kernel weights underflowed, using nearest neighbour",
			"total_weight", total, "neighbour", best)
		return targets[best]
	}

	weighted := 0.0
	for i, w := range weights {
		weighted += w * targets[i]
	}
	est := weighted / total
	if math.IsNaN(est) {
		return r.corpus.TargetMean()
	}
	return est
}
