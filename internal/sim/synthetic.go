package sim

import (
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/agrostack/cosecha/internal/config"
	"github.com/agrostack/cosecha/internal/utils"
)

// rawTimeLayout is the datalogger timestamp format carried in raw readings.
const rawTimeLayout = "01/02/06 15:04"

// simStep is the simulated clock advance per generated reading.
const simStep = 5 * time.Minute

// baseConditions are the resting levels each generated variable oscillates
// around.
var baseConditions = map[string]float64{
	"Tair":       23.0,
	"Rhair":      70.0,
	"CO2air":     600.0,
	"AssimLight": 150.0,
	"Tot_PAR":    200.0,
	"HumDef":     4.0,
	"EnScr":      50.0,
	"BlackScr":   50.0,
	"VentLee":    10.0,
	"Ventwind":   5.0,
	"PipeGrow":   25.0,
	"PipeLow":    20.0,
}

// circadianPattern shapes a variable's 24-hour day curve. Offset shifts the
// peak away from noon.
type circadianPattern struct {
	Amplitude float64
	Offset    float64
}

var circadianPatterns = map[string]circadianPattern{
	"Tair":       {Amplitude: 6.0, Offset: 0},
	"Rhair":      {Amplitude: 15.0, Offset: 12},
	"CO2air":     {Amplitude: 150.0, Offset: 6},
	"AssimLight": {Amplitude: 150.0, Offset: 0},
	"Tot_PAR":    {Amplitude: 100.0, Offset: 0},
}

// anomalyCandidates lists the variables eligible for injected faults.
var anomalyCandidates = []string{
	"Tair", "Rhair", "CO2air", "AssimLight", "Tot_PAR",
	"VentLee", "Ventwind", "EnScr", "BlackScr",
}

type anomalyTransform struct {
	kind  string
	apply func(r *rand.Rand, x float64) float64
}

// anomalyTransforms models plausible equipment faults per variable; any
// candidate without an entry gets a generic spike.
var anomalyTransforms = map[string][]anomalyTransform{
	"Tair": {
		{"spike_high", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 1.4, 1.8) }},
		{"spike_low", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 0.3, 0.6) }},
	},
	"Rhair": {
		{"spike_high", func(r *rand.Rand, x float64) float64 { return math.Min(100, x*uniformIn(r, 1.3, 1.5)) }},
		{"spike_low", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 0.4, 0.7) }},
	},
	"CO2air": {
		{"depletion", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 0.2, 0.5) }},
		{"excess", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 1.8, 2.5) }},
	},
	"AssimLight": {
		{"failure", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 0.1, 0.3) }},
		{"overexposure", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 2.0, 3.0) }},
	},
	"VentLee": {
		{"stuck_open", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 3.0, 5.0) }},
		{"stuck_closed", func(r *rand.Rand, x float64) float64 { return x * uniformIn(r, 0.1, 0.3) }},
	},
}

// bounds is the observed range of one variable in the historical dataset.
type bounds struct {
	lo, hi float64
}

// SyntheticGenerator produces greenhouse sensor payloads with day/night
// cycles, small gaussian noise and periodically injected anomalies. Not safe
// for concurrent use.
type SyntheticGenerator struct {
	rng         *rand.Rand
	clock       time.Time
	bounds      map[string]bounds
	count       int
	anomalies   int
	nextAnomaly int
	anomalyMin  int
	anomalyMax  int
	logger      *slog.Logger
}

// NewSyntheticGenerator seeds the generator from cfg. When cfg.DatasetPath
// points at a historical climate CSV, its per-column ranges clamp the
// generated values; otherwise values float freely around their baselines.
func NewSyntheticGenerator(cfg config.SimConfig, logger *slog.Logger) *SyntheticGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	minGap := cfg.AnomalyMin
	if minGap <= 0 {
		minGap = 30
	}
	maxGap := cfg.AnomalyMax
	if maxGap < minGap {
		maxGap = minGap
	}

	g := &SyntheticGenerator{
		rng:        rand.New(rand.NewSource(seed)),
		clock:      time.Now().UTC(),
		bounds:     learnBounds(cfg.DatasetPath, logger),
		anomalyMin: minGap,
		anomalyMax: maxGap,
		logger:     logger,
	}
	g.nextAnomaly = g.randInt(g.anomalyMin, g.anomalyMax)
	return g
}

// Next returns the next simulated reading and advances the simulated clock
// by five minutes. Every anomalyMin..anomalyMax readings one variable is
// distorted to look like an equipment fault.
func (g *SyntheticGenerator) Next() map[string]any {
	row := g.syntheticRow()
	if g.count >= g.nextAnomaly {
		g.injectAnomaly(row)
		g.nextAnomaly = g.count + g.randInt(g.anomalyMin, g.anomalyMax)
		g.anomalies++
	}
	g.count++
	g.clock = g.clock.Add(simStep)
	return row
}

// Anomalies reports how many readings have been distorted so far.
func (g *SyntheticGenerator) Anomalies() int { return g.anomalies }

func (g *SyntheticGenerator) syntheticRow() map[string]any {
	hour := float64(g.clock.Hour()) + float64(g.clock.Minute())/60.0

	row := make(map[string]any, 64)
	row["Tair"] = g.realisticValue("Tair", hour)
	row["Rhair"] = g.realisticValue("Rhair", hour)
	row["CO2air"] = g.realisticValue("CO2air", hour)
	row["AssimLight"] = math.Max(0, g.realisticValue("AssimLight", hour))
	row["Tot_PAR"] = math.Max(0, g.realisticValue("Tot_PAR", hour))
	row["HumDef"] = math.Abs(g.realisticValue("HumDef", hour))
	row["EnScr"] = clampValue(g.realisticValue("EnScr", hour), 0, 100)
	row["BlackScr"] = clampValue(g.realisticValue("BlackScr", hour), 0, 100)
	row["VentLee"] = math.Max(0, g.realisticValue("VentLee", hour))
	row["Ventwind"] = math.Max(0, g.realisticValue("Ventwind", hour))
	row["PipeGrow"] = math.Max(0, g.realisticValue("PipeGrow", hour))
	row["PipeLow"] = math.Max(0, g.realisticValue("PipeLow", hour))

	row["Cum_irr"] = round1(1.0 + g.uniform(0, 0.5))
	row["EC_drain_PC"] = round1(6.0 + g.uniform(0.2, 0.6))
	row["pH_drain_PC"] = round1(6.3 + g.uniform(0.1, 0.4))
	row["water_sup"] = g.randInt(10, 20)

	row["time"] = g.clock.Format(rawTimeLayout)

	tair := row["Tair"].(float64)
	row["assim_sp"] = 100
	row["assim_vip"] = 100
	row["co2_sp"] = 600
	row["co2_vip"] = 600
	row["co2_dos"] = round4(g.uniform(0.001, 0.005))
	row["dx_sp"] = 2.2
	row["dx_vip"] = 2.2
	row["t_heat_sp"] = round1(tair - g.uniform(1, 3))
	row["t_heat_vip"] = round1(tair - g.uniform(1, 3))
	row["t_vent_sp"] = round1(tair + g.uniform(2, 4))
	row["t_ventlee_vip"] = round1(tair + g.uniform(2, 4))
	row["t_ventwind_vip"] = round1(tair + g.uniform(3, 5))
	row["window_pos_lee_sp"] = 0
	row["window_pos_lee_vip"] = 0
	row["water_sup_intervals_sp_min"] = 120
	row["water_sup_intervals_vip_min"] = 120

	for _, name := range []string{
		"int_blue_sp", "int_blue_vip", "int_farred_sp", "int_farred_vip",
		"int_red_sp", "int_red_vip", "int_white_sp", "int_white_vip",
	} {
		row[name] = 1000
	}
	row["scr_blck_sp"] = 96
	row["scr_blck_vip"] = 96
	row["scr_enrg_sp"] = g.randInt(90, 100)
	row["scr_enrg_vip"] = g.randInt(90, 100)

	// Channels without a simulated source report null.
	for _, name := range []string{"t_grow_min_sp", "t_grow_min_vip", "t_rail_min_sp", "t_rail_min_vip"} {
		row[name] = nil
	}

	row["Tot_PAR_Lamps"] = row["Tot_PAR"]

	return row
}

// realisticValue layers the variable's day curve and 2% gaussian noise on its
// baseline, clamped to the historical range when one was learned.
func (g *SyntheticGenerator) realisticValue(name string, hour float64) float64 {
	base := baseConditions[name]
	v := base
	if p, ok := circadianPatterns[name]; ok {
		v += p.Amplitude * math.Sin(2*math.Pi*(hour+p.Offset)/24)
	}
	v += g.rng.NormFloat64() * base * 0.02
	if b, ok := g.bounds[name]; ok {
		v = clampValue(v, b.lo, b.hi)
	}
	return round2(v)
}

func (g *SyntheticGenerator) injectAnomaly(row map[string]any) {
	name := anomalyCandidates[g.rng.Intn(len(anomalyCandidates))]
	original, _ := row[name].(float64)

	kind := "generic_spike"
	value := original * g.uniform(2.0, 4.0)
	if transforms, ok := anomalyTransforms[name]; ok {
		t := transforms[g.rng.Intn(len(transforms))]
		kind = t.kind
		value = t.apply(g.rng, original)
	}
	row[name] = round2(value)

	g.logger.Warn("injected anomaly",
		"variable", name,
		"kind", kind,
		"value", round2(value),
		"was", original,
	)
}

// learnBounds extracts per-variable min/max from the historical CSV so
// generated values stay inside 0.8*min..1.2*max. A missing or unreadable file
// disables clamping.
func learnBounds(path string, logger *slog.Logger) map[string]bounds {
	out := make(map[string]bounds)
	if path == "" {
		return out
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("historical dataset unavailable, generating unclamped values", "path", path, "error", err)
		return out
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		logger.Warn("historical dataset unreadable", "path", path, "error", err)
		return out
	}
	cols := make(map[int]string)
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := baseConditions[name]; ok {
			cols[i] = name
		}
	}

	lo := make(map[string]float64)
	hi := make(map[string]float64)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		for i, name := range cols {
			if i >= len(rec) {
				continue
			}
			v, err := utils.ParseDecimal(rec[i])
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if cur, ok := lo[name]; !ok || v < cur {
				lo[name] = v
			}
			if cur, ok := hi[name]; !ok || v > cur {
				hi[name] = v
			}
		}
	}
	for name := range lo {
		out[name] = bounds{lo: lo[name] * 0.8, hi: hi[name] * 1.2}
	}
	if len(out) > 0 {
		logger.Info("learned value ranges from historical dataset", "path", path, "variables", len(out))
	}
	return out
}

func (g *SyntheticGenerator) uniform(lo, hi float64) float64 {
	return uniformIn(g.rng, lo, hi)
}

func (g *SyntheticGenerator) randInt(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func uniformIn(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func clampValue(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
