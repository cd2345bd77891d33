package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// nonStandardNumber matches bare NaN/Infinity literals that some upstream
// publishers emit in otherwise valid JSON.
var nonStandardNumber = regexp.MustCompile(`([:,\[]\s*)(NaN|-?Infinity)`)

// ScrubNonFiniteJSON rewrites bare NaN/Infinity literals to null so a single
// bad field does not make the whole payload undecodable.
func ScrubNonFiniteJSON(payload []byte) []byte {
	return nonStandardNumber.ReplaceAll(payload, []byte("${1}null"))
}

// ParseDecimal parses a number that may use a decimal comma.
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}
	return strconv.ParseFloat(s, 64)
}
