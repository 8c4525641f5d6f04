package systems

import (
	"github.com/blobject/emergence-sub000/state"
)

// SeekParams are the inputs of neighbour seeking that do not vary per agent.
type SeekParams struct {
	Width, Height float32
	ScopeSquared  float32
	AScopeSquared float32
}

// SeekParamsOf derives SeekParams from a state.
func SeekParamsOf(s *state.State) SeekParams {
	return SeekParams{
		Width:         s.Width,
		Height:        s.Height,
		ScopeSquared:  s.ScopeSquared,
		AScopeSquared: s.AScopeSquared,
	}
}

// Side returns the cross product of the displacement (dx, dy) with the heading
// vector (c, s). A negative value means the displaced agent is to the right.
//
// The explicit conversions keep the compiler from fusing the products into an
// FMA, so every caller rounds identically.
func Side(dx, dy, c, s float32) float32 {
	return float32(dx*s) - float32(dy*c)
}

// DistSquared returns dx²+dy² with each term rounded separately.
func DistSquared(dx, dy float32) float32 {
	return float32(dx*dx) + float32(dy*dy)
}

// Seek tallies every agent's neighbours sequentially. Each unordered pair is
// evaluated once, from its higher index, and updates both agents.
//
// idx must have been built from the same positions at the simulation scope.
func Seek(idx *SpatialIndex, a *state.Agents, p SeekParams) {
	a.ClearTallies()
	var vic [9]VicinityCell
	for src := 0; src < a.Len(); src++ {
		nv := idx.Vicinity(int(idx.Col[src]), int(idx.Row[src]), &vic)
		for v := 0; v < nv; v++ {
			seekCell(idx, a, p, src, &vic[v])
		}
	}
}

func seekCell(idx *SpatialIndex, a *state.Agents, p SeekParams, src int, v *VicinityCell) {
	srcx, srcy := a.X[src], a.Y[src]
	for _, d := range idx.Cell(v.Col, v.Row) {
		if d == Empty {
			break
		}
		dst := int(d)
		if src <= dst {
			continue
		}
		dx, dy := v.Delta(a.X[dst]-srcx, a.Y[dst]-srcy, p.Width, p.Height)
		d2 := DistSquared(dx, dy)
		if d2 > p.ScopeSquared {
			continue
		}
		if d2 <= p.AScopeSquared {
			a.AN[src]++
			a.AN[dst]++
		}
		a.N[src]++
		a.N[dst]++
		if Side(dx, dy, a.C[src], a.S[src]) < 0 {
			a.R[src]++
		} else {
			a.L[src]++
		}
		// seen from dst the displacement is reversed
		if Side(dx, dy, a.C[dst], a.S[dst]) > 0 {
			a.R[dst]++
		} else {
			a.L[dst]++
		}
	}
}

// seekAgent rescans one agent's full vicinity and tallies only that agent.
// Every pair is seen from both ends, so agents can be processed independently.
func seekAgent(idx *SpatialIndex, a *state.Agents, p SeekParams, i int) {
	var n, l, r, an uint32
	var vic [9]VicinityCell
	x, y, c, s := a.X[i], a.Y[i], a.C[i], a.S[i]
	nv := idx.Vicinity(int(idx.Col[i]), int(idx.Row[i]), &vic)
	for v := 0; v < nv; v++ {
		cell := &vic[v]
		for _, d := range idx.Cell(cell.Col, cell.Row) {
			if d == Empty {
				break
			}
			j := int(d)
			if j == i {
				continue
			}
			dx, dy := cell.Delta(a.X[j]-x, a.Y[j]-y, p.Width, p.Height)
			d2 := DistSquared(dx, dy)
			if d2 > p.ScopeSquared {
				continue
			}
			if d2 <= p.AScopeSquared {
				an++
			}
			n++
			if Side(dx, dy, c, s) < 0 {
				r++
			} else {
				l++
			}
		}
	}
	a.N[i], a.L[i], a.R[i], a.AN[i] = n, l, r, an
}

// ForEachPair calls fn once for every unordered pair of agents closer than or
// exactly at the radius the index was built with. src is always the higher
// index; (dx, dy) is the toroidal displacement from src to dst.
func ForEachPair(idx *SpatialIndex, px, py []float32, radiusSquared float32, fn func(src, dst int, dx, dy, d2 float32)) {
	var vic [9]VicinityCell
	for src := range px {
		nv := idx.Vicinity(int(idx.Col[src]), int(idx.Row[src]), &vic)
		for v := 0; v < nv; v++ {
			cell := &vic[v]
			for _, d := range idx.Cell(cell.Col, cell.Row) {
				if d == Empty {
					break
				}
				dst := int(d)
				if src <= dst {
					continue
				}
				dx, dy := cell.Delta(px[dst]-px[src], py[dst]-py[src], idx.Width, idx.Height)
				d2 := DistSquared(dx, dy)
				if d2 > radiusSquared {
					continue
				}
				fn(src, dst, dx, dy, d2)
			}
		}
	}
}
