// Package telemetry provides run statistics, bookmarking, performance timing,
// CSV output and Prometheus metrics for the particle system.
package telemetry

import (
	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/state"
)

// Collector accumulates events within tick windows and produces WindowStats.
type Collector struct {
	windowTicks int64

	// Current window tracking
	windowStartTick int64
	ticks           int

	// Event counters for current window
	reconfigurations int
	respawns         int
	clusterPasses    int

	// Latest census survives across windows
	census    analysis.Census
	hasCensus bool

	// Scratch buffers reused by Flush
	n, an, cos, sin []float64
}

// NewCollector creates a collector that flushes every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: int64(windowTicks)}
}

// RecordTick records one completed tick.
func (c *Collector) RecordTick() {
	c.ticks++
}

// RecordReconfigure records a parameter change.
func (c *Collector) RecordReconfigure(respawned bool) {
	c.reconfigurations++
	if respawned {
		c.respawns++
	}
}

// RecordCensus records a clustering pass and keeps its census for later windows.
func (c *Collector) RecordCensus(cs analysis.Census) {
	c.clusterPasses++
	c.census = cs
	c.hasCensus = true
}

// ClearCensus forgets the latest census, for example after a respawn.
func (c *Collector) ClearCensus() {
	c.census = analysis.Census{}
	c.hasCensus = false
}

// Restart begins a fresh window at tick, discarding the partial one. Event
// counters are kept so they land in the next flush.
func (c *Collector) Restart(tick int64) {
	c.windowStartTick = tick
	c.ticks = 0
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a WindowStats from the agents at currentTick and resets the
// counters for the next window.
func (c *Collector) Flush(currentTick int64, a *state.Agents) WindowStats {
	n := a.Len()
	c.n = fill(c.n, a.N)
	c.an = fill(c.an, a.AN)
	c.cos = fill(c.cos, a.C)
	c.sin = fill(c.sin, a.S)

	dist := ComputeDistribution(c.n)
	kinds := analysis.CountKinds(a.Kind)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		Ticks:           c.ticks,
		Agents:          n,

		NMean: dist.Mean,
		NStd:  dist.Std,
		NP10:  dist.P10,
		NP50:  dist.P50,
		NP90:  dist.P90,
		NMax:  dist.Max,

		Polarization: Polarization(c.cos, c.sin),

		Nutrients:       kinds[state.KindNutrient],
		PrematureSpores: kinds[state.KindPrematureSpore],
		MatureSpores:    kinds[state.KindMatureSpore],
		CellHulls:       kinds[state.KindCellHull],
		CellCores:       kinds[state.KindCellCore],

		Reconfigurations: c.reconfigurations,
		Respawns:         c.respawns,
		ClusterPasses:    c.clusterPasses,
	}
	if n > 0 {
		stats.ANMean = ComputeDistribution(c.an).Mean
		stats.MatureSporeFrac = float64(stats.MatureSpores) / float64(n)
		stats.CellFrac = float64(stats.CellHulls+stats.CellCores) / float64(n)
	}
	if c.hasCensus {
		stats.Clusters = c.census.Clusters
		stats.SporeClusters = c.census.SporeClusters
		stats.CellClusters = c.census.CellClusters
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.ticks = 0
	c.reconfigurations = 0
	c.respawns = 0
	c.clusterPasses = 0

	return stats
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() int64 {
	return c.windowTicks
}

func fill[T uint32 | float32](dst []float64, src []T) []float64 {
	dst = dst[:0]
	for _, v := range src {
		dst = append(dst, float64(v))
	}
	return dst
}
