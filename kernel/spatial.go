package kernel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/geometry"
)

// cellRef addresses cell Cell of cluster Cluster in the step's working set.
type cellRef struct {
	Cluster, Cell int
}

type gridEntry struct {
	ref cellRef
	pos geometry.Vec
}

// Neighbor holds a nearby cell with its minimal-image displacement from the query origin.
type Neighbor struct {
	Ref    cellRef
	D      geometry.Vec
	DistSq float64
}

// SpatialGrid provides neighbor lookups of cells on the torus using a uniform grid.
type SpatialGrid struct {
	space    geometry.Space
	cellSize float64
	cols     int
	rows     int
	cells    [][]gridEntry
}

// NewSpatialGrid creates a grid covering space with cells of at least cellSize.
func NewSpatialGrid(space geometry.Space, cellSize float64) *SpatialGrid {
	cols := max(int(float64(space.Width)/cellSize), 1)
	rows := max(int(float64(space.Height)/cellSize), 1)

	cells := make([][]gridEntry, cols*rows)
	for i := range cells {
		cells[i] = make([]gridEntry, 0, 4)
	}

	return &SpatialGrid{
		space:    space,
		cellSize: float64(space.Width) / float64(cols),
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}
}

// Clear removes all entries from the grid.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds a cell at the given position.
func (g *SpatialGrid) Insert(ref cellRef, pos geometry.Vec) {
	pos = g.space.Correct(pos)
	idx := g.cellIndex(pos)
	g.cells[idx] = append(g.cells[idx], gridEntry{ref: ref, pos: pos})
}

// QueryRadiusInto appends cells within radius of pos to dst, skipping cells of cluster exclude.
func (g *SpatialGrid) QueryRadiusInto(dst []Neighbor, pos geometry.Vec, radius float64, exclude int) []Neighbor {
	pos = g.space.Correct(pos)
	cellHeight := float64(g.space.Height) / float64(g.rows)
	firstCol, numCols := span(int(pos.X/g.cellSize), int(math.Ceil(radius/g.cellSize)), g.cols)
	firstRow, numRows := span(int(pos.Y/cellHeight), int(math.Ceil(radius/cellHeight)), g.rows)
	radiusSq := radius * radius

	for dc := 0; dc < numCols; dc++ {
		for dr := 0; dr < numRows; dr++ {
			// Toroidal wrap
			col := ((firstCol+dc)%g.cols + g.cols) % g.cols
			row := ((firstRow+dr)%g.rows + g.rows) % g.rows

			for _, e := range g.cells[row*g.cols+col] {
				if e.ref.Cluster == exclude {
					continue
				}
				d := g.space.Displacement(pos, e.pos)
				if distSq := r2.Norm2(d); distSq <= radiusSq {
					dst = append(dst, Neighbor{Ref: e.ref, D: d, DistSq: distSq})
				}
			}
		}
	}
	return dst
}

// span returns the first grid line and the number of lines within radius of center,
// visiting every line at most once.
func span(center, radius, n int) (int, int) {
	if 2*radius+1 >= n {
		return 0, n
	}
	return center - radius, 2*radius + 1
}

func (g *SpatialGrid) cellIndex(pos geometry.Vec) int {
	col := min(int(pos.X/g.cellSize), g.cols-1)
	row := min(int(pos.Y/(float64(g.space.Height)/float64(g.rows))), g.rows-1)
	return row*g.cols + col
}
