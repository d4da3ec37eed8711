package claim

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/terraclaim/internal/units"
)

// SpeedStats summarizes the accepted-fix speeds of a finished session, in
// km/h for display. Zero when no samples were collected.
type SpeedStats struct {
	Samples int     `json:"samples"`
	MeanKmh float64 `json:"mean_kmh"`
	P50Kmh  float64 `json:"p50_kmh"`
	P95Kmh  float64 `json:"p95_kmh"`
	MaxKmh  float64 `json:"max_kmh"`
}

// ComputeSpeedStats summarizes speed samples given in m/s.
func ComputeSpeedStats(speedsMps []float64) SpeedStats {
	if len(speedsMps) == 0 {
		return SpeedStats{}
	}

	sorted := make([]float64, len(speedsMps))
	copy(sorted, speedsMps)
	sort.Float64s(sorted)

	return SpeedStats{
		Samples: len(sorted),
		MeanKmh: units.MpsToKmh(stat.Mean(sorted, nil)),
		P50Kmh:  units.MpsToKmh(stat.Quantile(0.5, stat.Empirical, sorted, nil)),
		P95Kmh:  units.MpsToKmh(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
		MaxKmh:  units.MpsToKmh(sorted[len(sorted)-1]),
	}
}
