package predict

import (
	"math"

	"github.com/agrostack/cosecha/internal/models"
)

// Round1 reduces an estimate to the one-decimal precision carried on the
// wire.
func Round1(days float64) float64 {
	return math.Round(days*10) / 10
}

// Classify buckets an unrounded days-to-harvest estimate into an operator
// status. Buckets are half-open and checked in order; anything outside them,
// negative values included, reads as an extended cycle. The numeric estimate
// itself is never clamped.
func Classify(days float64) (models.HarvestStatus, string) {
	switch {
	case days >= 0 && days < 25:
		return models.StatusCritical, models.ColorCritical
	case days >= 25 && days < 35:
		return models.StatusImminent, models.ColorImminent
	case days >= 35 && days < 45:
		return models.StatusNormal, models.ColorNormal
	default:
		return models.StatusExtended, models.ColorExtended
	}
}
