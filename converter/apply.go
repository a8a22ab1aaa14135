package converter

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
)

type applier struct {
	space  geometry.Space
	rng    *rand.Rand
	params config.SimulationParameters
}

func (a applier) newID(id uint64) uint64 {
	for id == 0 {
		id = a.rng.Uint64()
	}
	return id
}

// delta returns the applied movement of a tracked position.
func (a applier) delta(t description.Tracked[geometry.Vec], current geometry.Vec) geometry.Vec {
	if old, ok := t.Old(); ok {
		return a.space.Displacement(old, t.Value())
	}
	return a.space.Displacement(current, t.Value())
}

func (a applier) newCluster(cc description.ClusterChange) description.Cluster {
	cl := description.Cluster{
		ID:         a.newID(cc.ID),
		Pos:        cc.Pos.Value(),
		Vel:        cc.Vel.Value(),
		Angle:      cc.Angle.Value(),
		AngularVel: cc.AngularVel.Value(),
		Metadata:   cc.Metadata.Value(),
	}
	for _, change := range cc.Cells {
		if change.State != description.Added {
			continue
		}
		cell := a.newCell(change)
		if !change.Pos.IsSet() {
			cell.Pos = cl.Pos
		}
		cl.Cells = append(cl.Cells, cell)
	}
	cl.UpdateCenter()
	return cl
}

func (a applier) newCell(change description.CellChange) description.Cell {
	cell := description.Cell{
		ID:             a.newID(change.ID),
		Pos:            change.Pos.Value(),
		Energy:         a.params.CellDefaultEnergy,
		MaxConnections: a.params.CellMaxConnections,
		Connections:    append([]uint64(nil), change.Connections.Value()...),
		Tokens:         append([]description.Token(nil), change.Tokens.Value()...),
		Metadata:       change.Metadata.Value(),
	}
	if change.Energy.IsSet() {
		cell.Energy = change.Energy.Value()
	}
	if change.MaxConnections.IsSet() && change.MaxConnections.Value() > 0 {
		cell.MaxConnections = change.MaxConnections.Value()
	}
	if f := change.Feature.Value(); f != nil {
		cell.Feature = &description.Feature{Type: f.Type, Data: append([]byte(nil), f.Data...)}
	}
	return cell
}

func (a applier) modifyCluster(cl *description.Cluster, cc description.ClusterChange) {
	explicit := make(map[uint64]bool)
	for _, change := range cc.Cells {
		if change.Pos.IsSet() {
			explicit[change.ID] = true
		}
	}

	if cc.Pos.IsSet() {
		d := a.delta(cc.Pos, cl.Pos)
		cl.Pos = r2.Add(cl.Pos, d)
		for i := range cl.Cells {
			if !explicit[cl.Cells[i].ID] {
				cl.Cells[i].Pos = r2.Add(cl.Cells[i].Pos, d)
			}
		}
	}
	if cc.Angle.IsSet() {
		old, ok := cc.Angle.Old()
		if !ok {
			old = cl.Angle
		}
		rotation := cc.Angle.Value() - old
		cl.Angle += rotation
		for i := range cl.Cells {
			if explicit[cl.Cells[i].ID] {
				continue
			}
			rel := r2.Sub(cl.Cells[i].Pos, cl.Pos)
			cl.Cells[i].Pos = r2.Add(cl.Pos, geometry.Rotate(rel, rotation))
		}
	}
	if cc.Vel.IsSet() {
		cl.Vel = cc.Vel.Value()
	}
	if cc.AngularVel.IsSet() {
		cl.AngularVel = cc.AngularVel.Value()
	}
	if cc.Metadata.IsSet() {
		cl.Metadata = cc.Metadata.Value()
	}

	if len(cc.Cells) > 0 {
		index := make(map[uint64]int, len(cl.Cells))
		for i, cell := range cl.Cells {
			index[cell.ID] = i
		}
		deleted := make(map[uint64]bool)
		for _, change := range cc.Cells {
			switch change.State {
			case description.Added:
				cl.Cells = append(cl.Cells, a.newCell(change))
			case description.Modified:
				if i, ok := index[change.ID]; ok {
					a.modifyCell(&cl.Cells[i], change)
				}
			case description.Deleted:
				deleted[change.ID] = true
			}
		}
		if len(deleted) > 0 {
			kept := cl.Cells[:0]
			for _, cell := range cl.Cells {
				if !deleted[cell.ID] {
					kept = append(kept, cell)
				}
			}
			cl.Cells = kept
		}
	}

	cl.UpdateCenter()
}

func (a applier) modifyCell(cell *description.Cell, change description.CellChange) {
	if change.Pos.IsSet() {
		cell.Pos = r2.Add(cell.Pos, a.delta(change.Pos, cell.Pos))
	}
	if change.Energy.IsSet() {
		cell.Energy = change.Energy.Value()
	}
	if change.MaxConnections.IsSet() {
		cell.MaxConnections = change.MaxConnections.Value()
	}
	if change.Connections.IsSet() {
		cell.Connections = append([]uint64(nil), change.Connections.Value()...)
	}
	if change.Feature.IsSet() {
		cell.Feature = nil
		if f := change.Feature.Value(); f != nil {
			cell.Feature = &description.Feature{Type: f.Type, Data: append([]byte(nil), f.Data...)}
		}
	}
	if change.Tokens.IsSet() {
		cell.Tokens = append([]description.Token(nil), change.Tokens.Value()...)
	}
	if change.Metadata.IsSet() {
		cell.Metadata = change.Metadata.Value()
	}
}

func (a applier) newParticle(pc description.ParticleChange) description.Particle {
	return description.Particle{
		ID:     a.newID(pc.ID),
		Pos:    pc.Pos.Value(),
		Vel:    pc.Vel.Value(),
		Energy: pc.Energy.Value(),
	}
}

func (a applier) modifyParticle(p *description.Particle, pc description.ParticleChange) {
	if pc.Pos.IsSet() {
		p.Pos = r2.Add(p.Pos, a.delta(pc.Pos, p.Pos))
	}
	if pc.Vel.IsSet() {
		p.Vel = pc.Vel.Value()
	}
	if pc.Energy.IsSet() {
		p.Energy = pc.Energy.Value()
	}
}
