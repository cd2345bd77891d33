package features

import (
	"sort"
	"strings"
)

// keepKeywords selects which numeric variables are aggregated: any column
// whose name contains one of these substrings (case-insensitive). They cover
// the climate, irrigation and actuator signal families of the greenhouse
// dataloggers.
var keepKeywords = []string{
	"vip", "air", "Cum_irr", "water_sup", "EC_drain_PC", "pH_drain_PC",
	"Tot_PAR", "AssimLight", "Tot_PAR_Lamps", "Vent", "Pipe", "HumDef",
	"Tair", "Rhair",
}

// mandatoryVariable is tracked even when absent from the incoming records so
// irrigation totals always have a column downstream.
const mandatoryVariable = "Cum_irr"

// TrackedVariables filters names through the keyword allow-list and returns
// the sorted, de-duplicated set of variables to aggregate.
func TrackedVariables(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if matchesKeyword(name) {
			seen[name] = struct{}{}
		}
	}
	seen[mandatoryVariable] = struct{}{}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func matchesKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keepKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
