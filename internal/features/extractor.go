package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agrostack/cosecha/internal/models"
	"github.com/agrostack/cosecha/internal/utils"
)

// aggSuffixes lists the aggregate columns derived per variable, in the order
// they appear in the durable feature log.
var aggSuffixes = []string{"mean", "median", "min", "max", "std", "p25", "p75", "range"}

// Extractor turns a closed window of raw records into one FeatureRow. It is
// a pure function of its input: no retained state, no side effects.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract aggregates the records of one closed window. Every tracked
// variable contributes the eight aggregate columns plus a trend slope;
// variables with no finite sample in the window carry NaN throughout.
func (e *Extractor) Extract(start time.Time, records []models.SensorRecord) models.FeatureRow {
	row := models.FeatureRow{WindowStart: start, Values: make(map[string]float64)}
	if len(records) == 0 {
		return row
	}

	names := make([]string, 0, len(records[0].Values))
	seen := make(map[string]struct{})
	for _, rec := range records {
		for name := range rec.Values {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	vars := TrackedVariables(names)

	// Elapsed time is measured from the earliest record of the window, the
	// same origin for every variable.
	t0 := records[0].Time
	for _, rec := range records[1:] {
		if rec.Time.Before(t0) {
			t0 = rec.Time
		}
	}

	for _, v := range vars {
		var xs, ys []float64
		for _, rec := range records {
			val, ok := rec.Values[v]
			if !ok || math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			xs = append(xs, utils.ElapsedSeconds(t0, rec.Time))
			ys = append(ys, val)
		}

		s := summarize(ys)
		row.Values[v+"__mean"] = s.mean
		row.Values[v+"__median"] = s.median
		row.Values[v+"__min"] = s.min
		row.Values[v+"__max"] = s.max
		row.Values[v+"__std"] = s.std
		row.Values[v+"__p25"] = s.p25
		row.Values[v+"__p75"] = s.p75
		row.Values[v+"__range"] = s.rng
		row.Values[v+"__slope"] = slope(xs, ys)
	}

	return row
}

// VariablesOf recovers the sorted tracked-variable set from a feature row.
func VariablesOf(row models.FeatureRow) []string {
	vars := make([]string, 0, len(row.Values)/9)
	for name := range row.Values {
		if v, ok := strings.CutSuffix(name, "__mean"); ok {
			vars = append(vars, v)
		}
	}
	sort.Strings(vars)
	return vars
}

// ColumnsFor returns the feature log column order for a variable set: the
// aggregate block per variable first, then the slope block, mirroring how
// the historical files were laid out.
func ColumnsFor(vars []string) []string {
	cols := make([]string, 0, len(vars)*(len(aggSuffixes)+1))
	for _, v := range vars {
		for _, suffix := range aggSuffixes {
			cols = append(cols, v+"__"+suffix)
		}
	}
	for _, v := range vars {
		cols = append(cols, v+"__slope")
	}
	return cols
}
