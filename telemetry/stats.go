package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/clusters/kernel"
)

// StatsRecord is one monitor sample, flattened for CSV export.
type StatsRecord struct {
	Timestep          uint64  `csv:"timestep"`
	WallTimeSec       float64 `csv:"wall_time"`
	Clusters          int     `csv:"clusters"`
	Cells             int     `csv:"cells"`
	Particles         int     `csv:"particles"`
	Tokens            int     `csv:"tokens"`
	InternalEnergy    float64 `csv:"internal_energy"`
	LinearKinetic     float64 `csv:"linear_kinetic"`
	RotationalKinetic float64 `csv:"rotational_kinetic"`
	TotalEnergy       float64 `csv:"total_energy"`

	// Change of total energy since the previous record, for conservation checks.
	EnergyDrift float64 `csv:"energy_drift"`
}

// NewStatsRecord flattens s. elapsed is the wall time since the run started.
// prev is the previous record, or nil for the first one.
func NewStatsRecord(s kernel.Stats, elapsed time.Duration, prev *StatsRecord) StatsRecord {
	r := StatsRecord{
		Timestep:          s.Timestep,
		WallTimeSec:       elapsed.Seconds(),
		Clusters:          s.Clusters,
		Cells:             s.Cells,
		Particles:         s.Particles,
		Tokens:            s.Tokens,
		InternalEnergy:    s.InternalEnergy,
		LinearKinetic:     s.LinearKinetic,
		RotationalKinetic: s.RotationalKinetic,
		TotalEnergy:       s.TotalEnergy(),
	}
	if prev != nil {
		r.EnergyDrift = r.TotalEnergy - prev.TotalEnergy
	}
	return r
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// LogValue implements slog.LogValuer for structured logging.
func (r StatsRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("timestep", r.Timestep),
		slog.Int("clusters", r.Clusters),
		slog.Int("cells", r.Cells),
		slog.Int("particles", r.Particles),
		slog.Int("tokens", r.Tokens),
		slog.Float64("total_energy", r.TotalEnergy),
		slog.Float64("energy_drift", r.EnergyDrift),
	)
}
