package access

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
)

// correctBoundary returns a copy of change whose cluster and particle positions are
// reduced into the world. When a cluster position is moved, every member cell
// position in the change moves by the same delta, so cluster geometry is kept.
func correctBoundary(space geometry.Space, change description.DataChange) description.DataChange {
	out := change.Clone()

	for i := range out.Clusters {
		cc := &out.Clusters[i]
		if cc.State == description.Deleted || !cc.Pos.IsSet() {
			continue
		}
		pos := cc.Pos.Value()
		corrected := space.Correct(pos)
		delta := r2.Sub(corrected, pos)
		if geometry.IsZero(delta) {
			continue
		}
		cc.Pos.SetValue(corrected)
		for j := range cc.Cells {
			cell := &cc.Cells[j]
			if cell.State == description.Deleted || !cell.Pos.IsSet() {
				continue
			}
			cell.Pos.SetValue(r2.Add(cell.Pos.Value(), delta))
		}
	}

	for i := range out.Particles {
		pc := &out.Particles[i]
		if pc.State == description.Deleted || !pc.Pos.IsSet() {
			continue
		}
		pc.Pos.SetValue(space.Correct(pc.Pos.Value()))
	}
	return out
}
