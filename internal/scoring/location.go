package scoring

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"reclaim/internal/domain"
)

// LocationScore maps great-circle distance between two reports to [0,1].
// Exact 1.0 at zero distance, exponential decay with decayM, hard 0 beyond
// maxRadiusM. Haversine keeps the distance honest at city scale; planar
// Euclidean drifts badly away from the equator.
func LocationScore(a, b *domain.Item, maxRadiusM, decayM float64) float64 {
	d := geo.DistanceHaversine(
		orb.Point{a.Lng, a.Lat},
		orb.Point{b.Lng, b.Lat},
	)
	if d > maxRadiusM {
		return 0
	}
	return math.Exp(-d / decayM)
}
