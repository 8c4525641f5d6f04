package telemetry

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick int64 `csv:"-"`
	WindowEndTick   int64 `csv:"window_end"`
	Ticks           int   `csv:"ticks"`

	Agents int `csv:"agents"`

	// Neighbour tally distribution, sampled at window end
	NMean float64 `csv:"n_mean"`
	NStd  float64 `csv:"n_std"`
	NP10  float64 `csv:"n_p10"`
	NP50  float64 `csv:"n_p50"`
	NP90  float64 `csv:"n_p90"`
	NMax  float64 `csv:"n_max"`

	ANMean float64 `csv:"an_mean"`

	// Length of the mean heading vector: 1 when every agent moves the same way
	Polarization float64 `csv:"polarization"`

	// Kind counts at window end
	Nutrients       int     `csv:"nutrients"`
	PrematureSpores int     `csv:"premature_spores"`
	MatureSpores    int     `csv:"mature_spores"`
	CellHulls       int     `csv:"cell_hulls"`
	CellCores       int     `csv:"cell_cores"`
	MatureSporeFrac float64 `csv:"mature_spore_frac"`
	CellFrac        float64 `csv:"cell_frac"`

	// Events during window
	Reconfigurations int `csv:"reconfigurations"`
	Respawns         int `csv:"respawns"`
	ClusterPasses    int `csv:"cluster_passes"`

	// Latest census, zero when no pass ran yet
	Clusters      int `csv:"clusters"`
	SporeClusters int `csv:"spore_clusters"`
	CellClusters  int `csv:"cell_clusters"`
}

// Distribution summarises a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
	Max           float64
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

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution returns the mean, population standard deviation and
// percentiles of values. values is sorted in place.
func ComputeDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	slices.Sort(values)
	return Distribution{
		Mean: mean,
		Std:  std,
		P10:  Percentile(values, 0.10),
		P50:  Percentile(values, 0.50),
		P90:  Percentile(values, 0.90),
		Max:  floats.Max(values),
	}
}

// Polarization returns the length of the mean unit heading vector given the
// per-agent cosines and sines.
func Polarization(cos, sin []float64) float64 {
	if len(cos) == 0 {
		return 0
	}
	mc := stat.Mean(cos, nil)
	ms := stat.Mean(sin, nil)
	return math.Hypot(mc, ms)
}

// CoefficientOfVariation returns std/mean of values, or +Inf when the mean is 0.
func CoefficientOfVariation(values []float64) float64 {
	mean, std := stat.PopMeanStdDev(values, nil)
	if mean == 0 {
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Int("agents", s.Agents),
		slog.Float64("n_mean", s.NMean),
		slog.Float64("n_std", s.NStd),
		slog.Float64("n_p50", s.NP50),
		slog.Float64("n_p90", s.NP90),
		slog.Float64("an_mean", s.ANMean),
		slog.Float64("polarization", s.Polarization),
		slog.Int("mature_spores", s.MatureSpores),
		slog.Int("cell_hulls", s.CellHulls),
		slog.Int("cell_cores", s.CellCores),
		slog.Int("clusters", s.Clusters),
		slog.Int("reconfigurations", s.Reconfigurations),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
