package analysis

import (
	"log/slog"

	"github.com/blobject/emergence-sub000/cluster"
	"github.com/blobject/emergence-sub000/state"
)

// Census summarises a clustering pass by the kinds of agents in each cluster.
//
// Isolated counts ambiguous agents with no neighbour at all.
type Census struct {
	Tick          int64   `csv:"tick"`
	Radius        float32 `csv:"radius"`
	MinPts        int     `csv:"min_pts"`
	Clusters      int     `csv:"clusters"`
	SporeClusters int     `csv:"spore_clusters"`
	CellClusters  int     `csv:"cell_clusters"`
	Cores         int     `csv:"cores"`
	Ambiguous     int     `csv:"ambiguous"`
	Isolated      int     `csv:"isolated"`
	LargestSize   int     `csv:"largest"`
}

// TakeCensus counts spore and cell clusters. A cluster counts as a spore
// cluster when more than half its members are mature spores, otherwise as a
// cell cluster when more than half are hulls or cores.
func TakeCensus(res *cluster.Result, kinds []state.Kind) Census {
	c := Census{
		Radius:    res.Radius,
		MinPts:    res.MinPts,
		Clusters:  len(res.Clusters),
		Cores:     len(res.Cores),
		Ambiguous: len(res.Ambiguous),
	}
	for _, i := range res.Ambiguous {
		if res.Counts[i] == 0 {
			c.Isolated++
		}
	}
	for _, members := range res.Clusters {
		c.LargestSize = max(c.LargestSize, len(members))
		switch {
		case majority(members, kinds, isSpore):
			c.SporeClusters++
		case majority(members, kinds, isCell):
			c.CellClusters++
		}
	}
	return c
}

func isSpore(k state.Kind) bool { return k == state.KindMatureSpore }

func isCell(k state.Kind) bool { return k == state.KindCellHull || k == state.KindCellCore }

func majority(members []int, kinds []state.Kind, match func(state.Kind) bool) bool {
	count := 0
	for _, i := range members {
		if i < len(kinds) && match(kinds[i]) {
			count++
		}
	}
	return count > len(members)/2
}

// LogValue implements slog.LogValuer for structured logging.
func (c Census) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("tick", c.Tick),
		slog.Float64("radius", float64(c.Radius)),
		slog.Int("min_pts", c.MinPts),
		slog.Int("clusters", c.Clusters),
		slog.Int("spore_clusters", c.SporeClusters),
		slog.Int("cell_clusters", c.CellClusters),
		slog.Int("cores", c.Cores),
		slog.Int("ambiguous", c.Ambiguous),
		slog.Int("isolated", c.Isolated),
		slog.Int("largest", c.LargestSize),
	)
}
