package scoring

import (
	"math"

	"reclaim/internal/domain"
)

// TemporalScore decays with the absolute gap in hours between the two
// reported-at timestamps. No hard cutoff: a week-old pair just scores low and
// the weight handles the rest.
func TemporalScore(a, b *domain.Item, decayHours float64) float64 {
	gap := math.Abs(a.ReportedAt.Sub(b.ReportedAt).Hours())
	return math.Exp(-gap / decayHours)
}
