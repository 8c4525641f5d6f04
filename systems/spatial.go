// Package systems implements the per-tick simulation step: the spatial index,
// neighbour seeking, motion, and the backends that run them.
package systems

import (
	"fmt"
	"log/slog"
	"math"
)

// Empty pads unused cell slots. It is never a valid agent index.
const Empty int32 = -1

// SpatialIndex buckets agent positions into a uniform wrap-around grid.
//
// Cell membership is flattened into Cells with a fixed stride equal to the
// largest cell population of the last build. Members of a cell appear in
// ascending agent order, followed by Empty padding.
type SpatialIndex struct {
	Cols, Rows   int
	CellW, CellH float32
	Stride       int
	Cells        []int32 // Cols*Rows*Stride, row-major cells

	// Per-agent cell coordinates.
	Col, Row []int32

	Width, Height float32

	counts []int32
}

// NewSpatialIndex returns an empty index. Call Build before querying it.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{}
}

// GridDims returns the grid shape for an arena and radius. An axis collapses to
// a single cell when the radius reaches the arena dimension.
func GridDims(width, height, radius float32) (cols, rows int) {
	if !(radius > 0) {
		panic(fmt.Sprintf("systems: spatial index radius must be positive, got %g", radius))
	}
	cols, rows = 1, 1
	if radius < width {
		cols = max(1, int(math.Floor(float64(width/radius))))
	}
	if radius < height {
		rows = max(1, int(math.Floor(float64(height/radius))))
	}
	return cols, rows
}

// Build rebuilds the index from positions. The result depends only on the
// inputs.
func (g *SpatialIndex) Build(px, py []float32, width, height, radius float32) {
	if len(px) != len(py) {
		panic("systems: position slices differ in length")
	}
	cols, rows := GridDims(width, height, radius)
	n := len(px)

	g.Cols, g.Rows = cols, rows
	g.Width, g.Height = width, height
	g.CellW = width / float32(cols)
	g.CellH = height / float32(rows)
	g.Col = resizeInt32(g.Col, n)
	g.Row = resizeInt32(g.Row, n)
	g.counts = resizeInt32(g.counts, cols*rows)

	stride := int32(0)
	for i := 0; i < n; i++ {
		// the last column/row absorbs the remainder when W/cols is not whole
		col := clampCell(int(math.Floor(float64(px[i]/g.CellW))), cols)
		row := clampCell(int(math.Floor(float64(py[i]/g.CellH))), rows)
		g.Col[i] = int32(col)
		g.Row[i] = int32(row)
		c := row*cols + col
		g.counts[c]++
		if g.counts[c] > stride {
			stride = g.counts[c]
		}
	}
	g.Stride = int(stride)

	g.Cells = resizeInt32(g.Cells, cols*rows*g.Stride)
	for i := range g.Cells {
		g.Cells[i] = Empty
	}
	clear(g.counts)
	for i := 0; i < n; i++ {
		c := int(g.Row[i])*cols + int(g.Col[i])
		g.Cells[c*g.Stride+int(g.counts[c])] = int32(i)
		g.counts[c]++
	}
}

// Cell returns the padded member slice of a cell.
func (g *SpatialIndex) Cell(col, row int) []int32 {
	base := (row*g.Cols + col) * g.Stride
	return g.Cells[base : base+g.Stride]
}

// VicinityCell is one cell of an agent's 3x3 neighbourhood.
//
// ShiftX is -1 when the cell was reached by wrapping past column 0 and +1 when
// wrapping past the last column; a raw delta toward a member is corrected by
// ShiftX*Width. FoldX marks a collapsed axis (fewer than three columns), where
// the same cell can be reached both ways and the delta is folded to the
// nearest image instead. ShiftY and FoldY are the same for rows.
type VicinityCell struct {
	Col, Row       int
	ShiftX, ShiftY int8
	FoldX, FoldY   bool
}

type axisStep struct {
	at    int
	shift int8
	fold  bool
}

// axisVicinity lists the distinct cells adjacent to i (inclusive) on an axis
// of n cells. On one- and two-cell axes the wrapped neighbours coincide with
// cells already listed, so each cell appears once and is marked to fold: its
// displacements take the minimum image instead of a fixed shift.
func axisVicinity(i, n int, out *[3]axisStep) int {
	switch {
	case n == 1:
		out[0] = axisStep{at: 0, fold: true}
		return 1
	case n == 2:
		out[0] = axisStep{at: i, fold: true}
		out[1] = axisStep{at: 1 - i, fold: true}
		return 2
	}
	lo := axisStep{at: i - 1}
	hi := axisStep{at: i + 1}
	if i == 0 {
		lo = axisStep{at: n - 1, shift: -1}
	} else if i == n-1 {
		hi = axisStep{at: 0, shift: 1}
	}
	out[0], out[1], out[2] = lo, axisStep{at: i}, hi
	return 3
}

// Vicinity writes the distinct cells around (col, row), itself included, and
// returns how many were written. Rows are visited bottom to top and columns
// left to right.
func (g *SpatialIndex) Vicinity(col, row int, out *[9]VicinityCell) int {
	var cs, rs [3]axisStep
	nc := axisVicinity(col, g.Cols, &cs)
	nr := axisVicinity(row, g.Rows, &rs)
	k := 0
	for r := 0; r < nr; r++ {
		for c := 0; c < nc; c++ {
			out[k] = VicinityCell{
				Col: cs[c].at, Row: rs[r].at,
				ShiftX: cs[c].shift, ShiftY: rs[r].shift,
				FoldX: cs[c].fold, FoldY: rs[r].fold,
			}
			k++
		}
	}
	return k
}

// Delta turns the raw displacement between an agent and a member of v into
// the toroidal displacement.
func (v *VicinityCell) Delta(dx, dy, width, height float32) (float32, float32) {
	return correct(dx, v.ShiftX, v.FoldX, width), correct(dy, v.ShiftY, v.FoldY, height)
}

func correct(d float32, shift int8, fold bool, span float32) float32 {
	if fold {
		half := span * 0.5
		if d > half {
			return d - span
		}
		if d < -half {
			return d + span
		}
		return d
	}
	switch shift {
	case -1:
		return d - span
	case 1:
		return d + span
	}
	return d
}

// IndexStats summarises the occupancy of the last build.
type IndexStats struct {
	Cells         int
	NonEmptyCells int
	Stride        int
	AvgPerCell    float64
}

// Stats reports occupancy figures for logging.
func (g *SpatialIndex) Stats() IndexStats {
	s := IndexStats{Cells: g.Cols * g.Rows, Stride: g.Stride}
	total := 0
	for _, c := range g.counts {
		if c > 0 {
			s.NonEmptyCells++
			total += int(c)
		}
	}
	if s.NonEmptyCells > 0 {
		s.AvgPerCell = float64(total) / float64(s.NonEmptyCells)
	}
	return s
}

// LogValue implements slog.LogValuer.
func (s IndexStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("cells", s.Cells),
		slog.Int("non_empty_cells", s.NonEmptyCells),
		slog.Int("stride", s.Stride),
		slog.Float64("avg_per_cell", s.AvgPerCell),
	)
}

func clampCell(c, n int) int {
	if c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

func resizeInt32(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	s = s[:n]
	clear(s)
	return s
}
