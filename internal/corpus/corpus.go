package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/agrostack/cosecha/internal/utils"
)

// MainColumns is the canonical order of the ten live features the regression
// model consumes. Lag columns extend this block in the training matrix.
var MainColumns = []string{
	"CO2air__mean", "Cum_irr__mean", "EC_drain_PC__mean", "HumDef__mean",
	"PipeGrow__mean", "PipeLow__mean", "Rhair__mean", "Tair__mean",
	"Tot_PAR__mean", "pH_drain_PC__mean",
}

// Config locates and shapes the training corpus.
type Config struct {
	Path        string
	TimeColumn  string
	GroupColumn string
	LagPeriods  int
}

func (c Config) withDefaults() Config {
	if c.TimeColumn == "" {
		c.TimeColumn = "__time__"
	}
	if c.GroupColumn == "" {
		c.GroupColumn = "cosecha"
	}
	if c.LagPeriods <= 0 {
		c.LagPeriods = 9
	}
	return c
}

// Corpus is the immutable training set: one row per historical observation
// with the ten main features and their lagged copies, and the days-to-harvest
// target per row. Built once at startup and shared read-only.
type Corpus struct {
	lagPeriods int
	x          *mat.Dense
	y          []float64
	mainMeans  []float64
	targetMean float64
}

// New builds a corpus from an already assembled feature matrix and target
// vector. The matrix width must be a whole multiple of the main-column block:
// the leading block holds the main features, the rest their lag copies.
func New(x *mat.Dense, y []float64) (*Corpus, error) {
	n, d := x.Dims()
	m := len(MainColumns)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("corpus shape mismatch: %d rows, %d targets", n, len(y))
	}
	if d < m || d%m != 0 {
		return nil, fmt.Errorf("corpus width %d is not a multiple of %d main columns", d, m)
	}

	c := &Corpus{lagPeriods: d/m - 1, x: x, y: y}
	c.mainMeans = make([]float64, m)
	for j := 0; j < m; j++ {
		c.mainMeans[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	c.targetMean = stat.Mean(y, nil)
	return c, nil
}

// Load reads the corpus CSV, derives the per-cycle target, renames source
// columns to their model names, drops rows with gaps in the main features or
// target, and appends the lag feature block.
func Load(cfg Config, logger *slog.Logger) (*Corpus, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", cfg.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read corpus header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	timeIdx, ok := idx[cfg.TimeColumn]
	if !ok {
		return nil, fmt.Errorf("corpus missing time column %q", cfg.TimeColumn)
	}
	groupIdx, ok := idx[cfg.GroupColumn]
	if !ok {
		return nil, fmt.Errorf("corpus missing group column %q", cfg.GroupColumn)
	}

	// A column may carry its source name or the renamed model name.
	mainIdx := make([]int, len(MainColumns))
	for i, col := range MainColumns {
		if j, ok := idx[col]; ok {
			mainIdx[i] = j
			continue
		}
		raw := strings.TrimSuffix(col, "__mean")
		j, ok := idx[raw]
		if !ok {
			return nil, fmt.Errorf("corpus missing column %q", raw)
		}
		mainIdx[i] = j
	}

	type observation struct {
		group string
		t     time.Time
		tOK   bool
		main  []float64
	}

	var (
		rows     []observation
		maxTimes = map[string]time.Time{}
		badTimes int
	)
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read corpus row: %w", err)
		}
		obs := observation{main: make([]float64, len(mainIdx))}
		obs.group = cell(rec, groupIdx)
		if t, err := parseTime(cell(rec, timeIdx)); err == nil {
			obs.t, obs.tOK = t, true
			if cur, ok := maxTimes[obs.group]; !ok || t.After(cur) {
				maxTimes[obs.group] = t
			}
		} else {
			badTimes++
		}
		for i, j := range mainIdx {
			obs.main[i] = parseCell(cell(rec, j))
		}
		rows = append(rows, obs)
	}
	if badTimes > 0 {
		logger.Warn("corpus rows with unparseable timestamps dropped", "rows", badTimes)
	}

	// Target per row: days from the observation to its cycle's last one.
	base := make([][]float64, 0, len(rows))
	targets := make([]float64, 0, len(rows))
	for _, obs := range rows {
		if !obs.tOK {
			continue
		}
		target := maxTimes[obs.group].Sub(obs.t).Seconds() / 86400
		if !finite(target) || !allFinite(obs.main) {
			continue
		}
		base = append(base, obs.main)
		targets = append(targets, target)
	}

	n := len(base)
	if n == 0 {
		return nil, fmt.Errorf("corpus %s empty after cleaning (%d raw rows)", cfg.Path, len(rows))
	}
	if n <= cfg.LagPeriods {
		return nil, fmt.Errorf("corpus has %d usable rows, need more than %d lag periods: %w",
			n, cfg.LagPeriods, utils.ErrInsufficientSamples)
	}

	m := len(MainColumns)
	x := mat.NewDense(n, m*(1+cfg.LagPeriods), nil)
	for i, row := range base {
		for j, v := range row {
			x.Set(i, j, v)
		}
	}

	// Lag columns are the main columns shifted down p rows over the cleaned
	// set as a whole. The first p rows have no predecessor and take the
	// shifted column's mean instead.
	for p := 1; p <= cfg.LagPeriods; p++ {
		for j := 0; j < m; j++ {
			col := m*p + j
			sum := 0.0
			for i := p; i < n; i++ {
				v := base[i-p][j]
				x.Set(i, col, v)
				sum += v
			}
			fill := sum / float64(n-p)
			for i := 0; i < p; i++ {
				x.Set(i, col, fill)
			}
		}
	}

	c, err := New(x, targets)
	if err != nil {
		return nil, err
	}

	minT, maxT := targets[0], targets[0]
	for _, t := range targets {
		minT = math.Min(minT, t)
		maxT = math.Max(maxT, t)
	}
	logger.Info("corpus loaded",
		"path", cfg.Path,
		"samples", n,
		"features", c.Dim(),
		"lag_features", m*cfg.LagPeriods,
		"target_min_days", minT,
		"target_max_days", maxT,
	)
	return c, nil
}

// NumSamples reports the number of training rows.
func (c *Corpus) NumSamples() int { return len(c.y) }

// Dim reports the feature width: main columns plus their lag copies.
func (c *Corpus) Dim() int { return len(MainColumns) * (1 + c.lagPeriods) }

// MainDim reports the width of the leading main-feature block.
func (c *Corpus) MainDim() int { return len(MainColumns) }

// Features returns the training matrix. Callers must not modify it.
func (c *Corpus) Features() *mat.Dense { return c.x }

// Targets returns the days-to-harvest target vector. Callers must not
// modify it.
func (c *Corpus) Targets() []float64 { return c.y }

// MainMean reports the corpus-wide mean of main column i, used to substitute
// missing live values.
func (c *Corpus) MainMean(i int) float64 { return c.mainMeans[i] }

// TargetMean reports the unweighted mean of the target vector, the estimator's
// last-resort answer.
func (c *Corpus) TargetMean() float64 { return c.targetMean }

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseCell(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTime(s string) (time.Time, error) {
	if t, err := utils.ParseSensorTime(s); err == nil {
		return t, nil
	}
	// Some exports carry epoch seconds instead of a formatted timestamp.
	if sec, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && finite(sec) {
		return time.Unix(0, int64(sec*float64(time.Second))).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized corpus timestamp %q", s)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
