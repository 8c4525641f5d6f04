// Package cluster groups agents by density over a snapshot of positions.
//
// The grouping is DBSCAN without border points: only core agents seed and
// join clusters. Agents below the threshold are reported as ambiguous and are
// never members of any cluster.
package cluster

import (
	"slices"

	"github.com/blobject/emergence-sub000/systems"
)

// Result is the outcome of one clustering pass. It stays valid until the
// engine runs again.
type Result struct {
	Radius float32
	MinPts int

	// Counts[i] is the number of agents within Radius of agent i.
	Counts []int
	// Cores and Ambiguous partition all agent indices, each ascending.
	Cores     []int
	Ambiguous []int
	// Clusters hold core indices, each ascending. Clusters are ordered by
	// their lowest core index.
	Clusters [][]int
}

// Empty reports whether no cluster was found.
func (r *Result) Empty() bool { return r == nil || len(r.Clusters) == 0 }

// Membership returns, for each of n agents, the cluster it belongs to or -1.
func (r *Result) Membership(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	if r == nil {
		return out
	}
	for c, members := range r.Clusters {
		for _, i := range members {
			if i < n {
				out[i] = c
			}
		}
	}
	return out
}

// Sizes returns the member count of each cluster.
func (r *Result) Sizes() []int {
	if r == nil {
		return nil
	}
	out := make([]int, len(r.Clusters))
	for i, c := range r.Clusters {
		out[i] = len(c)
	}
	return out
}

// Engine runs clustering passes. It keeps its own spatial index and adjacency
// buffers between runs; it is not safe for concurrent use.
type Engine struct {
	idx *systems.SpatialIndex

	// adjacency in compressed rows: neighbours of i are adj[start[i]:start[i+1]]
	start []int
	adj   []int32
	fill  []int
}

// NewEngine creates an engine with empty buffers.
func NewEngine() *Engine {
	return &Engine{idx: systems.NewSpatialIndex()}
}

// Run clusters the agents at (px[i], py[i]) in a w×h toroidal arena. The
// positions are only read. radius must be positive.
func (e *Engine) Run(px, py []float32, w, h, radius float32, minPts int) Result {
	n := len(px)
	res := Result{Radius: radius, MinPts: minPts, Counts: make([]int, n)}
	if n == 0 {
		return res
	}

	e.neighbourhood(px, py, w, h, radius, res.Counts)
	isCore := e.categorise(&res)
	res.Clusters = e.collect(res.Cores, isCore)
	return res
}

// neighbourhood builds the adjacency lists at the clustering radius.
func (e *Engine) neighbourhood(px, py []float32, w, h, radius float32, counts []int) {
	n := len(px)
	e.idx.Build(px, py, w, h, radius)
	r2 := radius * radius

	systems.ForEachPair(e.idx, px, py, r2, func(src, dst int, _, _, _ float32) {
		counts[src]++
		counts[dst]++
	})

	e.start = slices.Grow(e.start[:0], n+1)[:n+1]
	e.start[0] = 0
	for i := 0; i < n; i++ {
		e.start[i+1] = e.start[i] + counts[i]
	}
	total := e.start[n]
	e.adj = slices.Grow(e.adj[:0], total)[:total]
	e.fill = slices.Grow(e.fill[:0], n)[:n]
	copy(e.fill, e.start[:n])

	systems.ForEachPair(e.idx, px, py, r2, func(src, dst int, _, _, _ float32) {
		e.adj[e.fill[src]] = int32(dst)
		e.fill[src]++
		e.adj[e.fill[dst]] = int32(src)
		e.fill[dst]++
	})
}

func (e *Engine) neighbours(i int) []int32 {
	return e.adj[e.start[i]:e.start[i+1]]
}

// categorise splits agents into cores and ambiguous ones. Agents without any
// neighbour are ambiguous.
func (e *Engine) categorise(res *Result) []bool {
	isCore := make([]bool, len(res.Counts))
	for i, c := range res.Counts {
		if c >= res.MinPts {
			isCore[i] = true
			res.Cores = append(res.Cores, i)
		} else {
			res.Ambiguous = append(res.Ambiguous, i)
		}
	}
	return isCore
}

// collect expands each unvisited core breadth-first through core neighbours.
func (e *Engine) collect(cores []int, isCore []bool) [][]int {
	if len(cores) == 0 {
		return nil
	}
	visited := make([]bool, len(isCore))
	var clusters [][]int
	queue := make([]int, 0, 64)

	for _, seed := range cores {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		queue = append(queue[:0], seed)
		var members []int

		for head := 0; head < len(queue); head++ {
			q := queue[head]
			members = append(members, q)
			for _, r := range e.neighbours(q) {
				if isCore[r] && !visited[r] {
					visited[r] = true
					queue = append(queue, int(r))
				}
			}
		}

		slices.Sort(members)
		clusters = append(clusters, members)
	}
	return clusters
}
