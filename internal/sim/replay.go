package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/agrostack/cosecha/internal/config"
	"github.com/agrostack/cosecha/internal/corpus"
	"github.com/agrostack/cosecha/internal/utils"
)

// replayTimeLayout matches the cycle timestamps used in the training corpus.
const replayTimeLayout = "2006-01-02 15:04:05"

// replayRow is one precomputed 12-hour period of a simulated harvest cycle.
type replayRow struct {
	means    []float64
	cycle    int
	daysLeft float64
	stamp    time.Time
}

// ReplayGenerator replays harvest cycles resampled from historical climate
// data. Each cycle walks tiempo_final from 45 days down to half a day in
// 12-hour periods, with per-cycle seasonal drift baked in at construction and
// fresh measurement noise added on every emission. Not safe for concurrent
// use.
type ReplayGenerator struct {
	rng  *rand.Rand
	rows []replayRow
	idx  int
	now  func() time.Time
}

// NewReplayGenerator builds cfg.Cycles simulated harvests by resampling the
// ten model variables from the CSV at cfg.DatasetPath.
func NewReplayGenerator(cfg config.SimConfig, logger *slog.Logger) (*ReplayGenerator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := loadReplayBase(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cycles := cfg.Cycles
	if cycles <= 0 {
		cycles = 3
	}
	days := cfg.CycleDays
	if days <= 0 {
		days = 45
	}

	g := newReplayFromBase(base, cycles, days*2, rand.New(rand.NewSource(seed)))
	logger.Info("simulated harvest cycles ready",
		"dataset", cfg.DatasetPath,
		"base_rows", len(base),
		"cycles", cycles,
		"periods", len(g.rows),
	)
	return g, nil
}

func newReplayFromBase(base [][]float64, cycles, periods int, rng *rand.Rand) *ReplayGenerator {
	if periods < 2 {
		periods = 2
	}
	g := &ReplayGenerator{
		rng:  rng,
		rows: make([]replayRow, 0, cycles*periods),
		now:  time.Now,
	}
	step := (0.5 - 45.0) / float64(periods-1)
	for cycle := 0; cycle < cycles; cycle++ {
		start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, cycle*50)
		factors := seasonalFactors(cycle)
		for i := 0; i < periods; i++ {
			src := base[rng.Intn(len(base))]
			means := make([]float64, len(src))
			for j, v := range src {
				means[j] = v * factors[j]
			}
			g.rows = append(g.rows, replayRow{
				means:    means,
				cycle:    cycle,
				daysLeft: 45.0 + step*float64(i),
				stamp:    start.Add(time.Duration(i) * 12 * time.Hour),
			})
		}
	}
	return g
}

// Next returns the next 12-hour period payload, wrapping around after the
// last cycle completes.
func (g *ReplayGenerator) Next() map[string]any {
	row := g.rows[g.idx]
	g.idx = (g.idx + 1) % len(g.rows)

	payload := make(map[string]any, len(row.means)+5)
	for i, name := range corpus.MainColumns {
		v := row.means[i]
		if math.Abs(v) > 0.001 {
			v += g.rng.NormFloat64() * math.Abs(v) * 0.003
		}
		payload[name] = v
	}
	payload["cosecha"] = row.cycle
	payload["harvest_number"] = row.cycle
	payload["tiempo_final"] = row.daysLeft
	payload["__time__"] = row.stamp.Format(replayTimeLayout)
	payload["timestamp"] = g.now().UTC().Format(time.RFC3339)
	return payload
}

// Periods reports the total number of precomputed periods across all cycles.
func (g *ReplayGenerator) Periods() int { return len(g.rows) }

// seasonalFactors drifts each cycle slightly so resampled rows do not repeat
// verbatim across harvests.
func seasonalFactors(cycle int) []float64 {
	c := float64(cycle)
	factors := make([]float64, len(corpus.MainColumns))
	for i, name := range corpus.MainColumns {
		switch strings.TrimSuffix(name, "__mean") {
		case "CO2air":
			factors[i] = 1.0 + c*0.02
		case "Tair":
			factors[i] = 1.0 + c*0.01
		case "Rhair":
			factors[i] = 1.0 + math.Sin(c)*0.05
		case "Tot_PAR":
			factors[i] = 1.0 + c*0.015
		default:
			factors[i] = 1.0
		}
	}
	return factors
}

// loadReplayBase reads the ten model variables from a historical climate CSV,
// keeping only rows where every one of them parses to a finite number. The
// header may carry either the source names or the renamed model names.
func loadReplayBase(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read replay dataset header: %w", err)
	}
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[strings.TrimSpace(name)] = i
	}

	idx := make([]int, len(corpus.MainColumns))
	var missing []string
	for i, col := range corpus.MainColumns {
		if j, ok := byName[col]; ok {
			idx[i] = j
			continue
		}
		raw := strings.TrimSuffix(col, "__mean")
		j, ok := byName[raw]
		if !ok {
			missing = append(missing, raw)
			continue
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("replay dataset %s lacks columns %s", path, strings.Join(missing, ", "))
	}

	var rows [][]float64
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read replay dataset: %w", err)
		}
		values := make([]float64, len(idx))
		usable := true
		for i, col := range idx {
			if col >= len(rec) {
				usable = false
				break
			}
			v, err := utils.ParseDecimal(rec[col])
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				usable = false
				break
			}
			values[i] = v
		}
		if usable {
			rows = append(rows, values)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("replay dataset %s has no usable rows", path)
	}
	return rows, nil
}
