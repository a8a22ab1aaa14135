package components

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
)

// Cell is a member of a cluster. Rel is the offset from the cluster
// center in the cluster frame (angle 0).
type Cell struct {
	ID             uint64
	Rel            geometry.Vec
	Energy         float64
	MaxConnections int
	Connections    []int // indices into CellBuffer.Cells
	Feature        description.FeatureType
	FeatureData    []byte
	Tokens         []description.Token
	Name           string
	Description    string

	// Destroyed marks a cell for removal at the end of the step.
	Destroyed bool
}

// CellBuffer holds the cells of a cluster.
type CellBuffer struct {
	Cells []Cell
}

// Count returns the number of cells.
func (cb *CellBuffer) Count() int { return len(cb.Cells) }

// Offset returns the world-frame offset of cell i from the center.
func (cb *CellBuffer) Offset(i int, angle float64) geometry.Vec {
	return geometry.Rotate(cb.Cells[i].Rel, angle)
}

// Positions appends the unwrapped absolute cell positions to dst.
func (cb *CellBuffer) Positions(dst []geometry.Vec, center geometry.Vec, angle float64) []geometry.Vec {
	for i := range cb.Cells {
		dst = append(dst, r2.Add(center, cb.Offset(i, angle)))
	}
	return dst
}

// Connected reports whether cells i and j share a connection.
func (cb *CellBuffer) Connected(i, j int) bool {
	for _, k := range cb.Cells[i].Connections {
		if k == j {
			return true
		}
	}
	return false
}

// CanConnect reports whether cell i has a free connection slot.
func (cb *CellBuffer) CanConnect(i int) bool {
	c := &cb.Cells[i]
	return len(c.Connections) < c.MaxConnections
}

// Connect adds a symmetric connection if both cells have a free slot.
func (cb *CellBuffer) Connect(i, j int) bool {
	if i == j || cb.Connected(i, j) || !cb.CanConnect(i) || !cb.CanConnect(j) {
		return false
	}
	cb.Cells[i].Connections = append(cb.Cells[i].Connections, j)
	cb.Cells[j].Connections = append(cb.Cells[j].Connections, i)
	return true
}

// Energy returns the summed cell and token energy.
func (cb *CellBuffer) Energy() float64 {
	var e float64
	for i := range cb.Cells {
		e += cb.Cells[i].Energy
		for _, t := range cb.Cells[i].Tokens {
			e += t.Energy
		}
	}
	return e
}

// NumTokens returns the number of tokens on all cells.
func (cb *CellBuffer) NumTokens() int {
	n := 0
	for i := range cb.Cells {
		n += len(cb.Cells[i].Tokens)
	}
	return n
}
